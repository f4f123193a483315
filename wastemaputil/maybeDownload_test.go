package wastemaputil

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func helperLog(t *testing.T) chan string {
	outChan := make(chan string)
	go func() {
		for {
			msg := <-outChan
			t.Logf(msg)
		}
	}()
	return outChan
}

func TestMaybeDownloadLocal(t *testing.T) {
	if k := maybeDownload(context.TODO(), "/dev/null", helperLog(t)); k != "/dev/null" {
		t.Error("Expected /dev/null, got ", k)
	}
}

func TestMaybeDownloadLocal2(t *testing.T) {
	if k := maybeDownload(context.TODO(), "/blah/test/", helperLog(t)); k != "/blah/test/" {
		t.Error("Expected /blah/test/, got ", k)
	}
}

func TestMaybeDownloadRemoteFail(t *testing.T) {
	if k := maybeDownload(context.TODO(), "http://blah/test/", helperLog(t)); k != "http://blah/test/" {
		t.Error("Expected http://blah/test/, got ", k)
	}
}

func TestMaybeDownloadRemote(t *testing.T) {
	content := []byte("test download data\n")
	if err := ioutil.WriteFile("testDownload.txt", content, 0644); err != nil {
		t.Fatal(err)
	}
	defer os.Remove("testDownload.txt")
	srv := httptest.NewServer(http.FileServer(http.Dir(".")))
	defer srv.Close()

	k := maybeDownload(context.TODO(), srv.URL+"/testDownload.txt", helperLog(t))
	if !strings.HasSuffix(k, "testDownload.txt") || strings.HasPrefix(k, "http") {
		t.Fatal("Expected tempDir/testDownload.txt, got ", k)
	}
	data, err := ioutil.ReadFile(k)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("downloaded data should be %q but is %q", content, data)
	}
}

// A shapefile download fetches the support files alongside the main file,
// except for any that are not on the server.
func TestMaybeDownloadRemoteShapefile(t *testing.T) {
	files := map[string][]byte{
		"fake.shp": []byte("shp data"),
		"fake.dbf": []byte("dbf data"),
		"fake.shx": []byte("shx data"),
	}
	for name, content := range files {
		if err := ioutil.WriteFile(name, content, 0644); err != nil {
			t.Fatal(err)
		}
		defer os.Remove(name)
	}
	srv := httptest.NewServer(http.FileServer(http.Dir(".")))
	defer srv.Close()

	k := maybeDownload(context.TODO(), srv.URL+"/fake.shp", helperLog(t))
	if !strings.HasSuffix(k, "fake.shp") || strings.HasPrefix(k, "http") {
		t.Fatal("Expected tempDir/fake.shp, got ", k)
	}
	dir := filepath.Dir(k)
	for name, content := range files {
		data, err := ioutil.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, content) {
			t.Errorf("%s should hold %q but holds %q", name, content, data)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "fake.prj")); !os.IsNotExist(err) {
		t.Error("the missing fake.prj should not have been downloaded")
	}
}

func TestMaybeDownloadRemoteMissing(t *testing.T) {
	srv := httptest.NewServer(http.FileServer(http.Dir(".")))
	defer srv.Close()

	url := srv.URL + "/thisFileDoesNotExist.txt"
	if k := maybeDownload(context.TODO(), url, helperLog(t)); k != url {
		t.Error("Expected ", url, ", got ", k)
	}
}

func TestMaybeDownloadBlob(t *testing.T) {
	if err := os.Mkdir("testbucket", os.ModePerm); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll("testbucket")
	content := []byte("blob contents\n")
	if err := ioutil.WriteFile(filepath.Join("testbucket", "blobData.txt"), content, 0644); err != nil {
		t.Fatal(err)
	}

	k := maybeDownload(context.TODO(), "file://testbucket/blobData.txt", helperLog(t))
	if !strings.HasSuffix(k, "blobData.txt") || IsBlob(k) {
		t.Fatal("Expected tempDir/blobData.txt, got ", k)
	}
	data, err := ioutil.ReadFile(k)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("downloaded data should be %q but is %q", content, data)
	}
}
