/*
Copyright © 2020 the WasteMap authors.
This file is part of WasteMap.

WasteMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WasteMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WasteMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package wastemaputil

import (
	"math"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/wastemap"
)

func TestCheckOutputVars(t *testing.T) {
	if _, err := checkOutputVars(map[string]string{}); err == nil {
		t.Error("empty output variables should cause an error")
	} else if !strings.Contains(err.Error(), "there are no variables specified for output") {
		t.Errorf("unexpected error %v", err)
	}

	os.Setenv("WASTEMAP_TEST_EXPR", "Generated")
	vars, err := checkOutputVars(map[string]string{
		"TotalGen": "${WASTEMAP_TEST_EXPR} * 2",
		"Deficit":  "Generated -\r\nCollected",
		"Uncol":    "Uncollected /\n7",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"TotalGen": "Generated * 2",
		"Deficit":  "Generated - Collected",
		"Uncol":    "Uncollected / 7",
	}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("want %v but have %v", want, vars)
	}
}

func TestRemoveShpSupportFiles(t *testing.T) {
	files := []string{"zones.shp", "zones.dbf", "zones.shx", "zones.prj", "more.shp", "notes.txt"}
	want := []string{"zones.shp", "more.shp"}
	if have := removeShpSupportFiles(files); !reflect.DeepEqual(have, want) {
		t.Errorf("want %v but have %v", want, have)
	}
}

func TestCheckOutputFile(t *testing.T) {
	if _, err := checkOutputFile(""); err == nil {
		t.Error("an empty output file should cause an error")
	} else if !strings.Contains(err.Error(), "you need to specify an output file") {
		t.Errorf("unexpected error %v", err)
	}

	f, err := checkOutputFile("testConfigOutput.shp")
	if err != nil {
		t.Fatal(err)
	}
	if f != "testConfigOutput.shp" {
		t.Errorf("want testConfigOutput.shp but have %s", f)
	}

	if _, err := checkOutputFile("thisDirectoryDoesNotExist/output.shp"); err == nil {
		t.Error("a missing output directory should cause an error")
	} else if !strings.Contains(err.Error(), "the OutputFile directory doesn't exist") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestCheckLogFile(t *testing.T) {
	if f := checkLogFile("", "results/output.shp"); f != "results/output.log" {
		t.Errorf("want results/output.log but have %s", f)
	}
	if f := checkLogFile("run.log", "results/output.shp"); f != "run.log" {
		t.Errorf("want run.log but have %s", f)
	}
}

func TestCheckCollectionUnits(t *testing.T) {
	for _, u := range []string{"t/week", "tonnes/week", "kg/week", "kg/day"} {
		have, err := checkCollectionUnits(u)
		if err != nil {
			t.Errorf("%s: %v", u, err)
		}
		if have != u {
			t.Errorf("want %s but have %s", u, have)
		}
	}
	os.Setenv("WASTEMAP_TEST_UNITS", "kg/day")
	if have, err := checkCollectionUnits("${WASTEMAP_TEST_UNITS}"); err != nil {
		t.Error(err)
	} else if have != "kg/day" {
		t.Errorf("want kg/day but have %s", have)
	}
	if _, err := checkCollectionUnits("lb/day"); err == nil {
		t.Error("invalid units should cause an error")
	} else if !strings.Contains(err.Error(), "needs to be set to either t/week, kg/week, or kg/day") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestParseRates(t *testing.T) {
	tests := []struct {
		rate  float64
		sweep string
		want  []float64
		err   string
	}{
		{
			rate: 0.6,
			want: []float64{0.6},
		},
		{
			rate:  0.6,
			sweep: "0.2:1:0.2",
			want:  []float64{0.2, 0.4, 0.6, 0.8, 1},
		},
		{
			sweep: "0.5:0.5:0.1",
			want:  []float64{0.5},
		},
		{
			sweep: " 1 : 3 : 1 ",
			want:  []float64{1, 2, 3},
		},
		{
			sweep: "0.2:1.0",
			err:   "must have the form 'low:high:step'",
		},
		{
			sweep: "low:high:step",
			err:   "parsing GenerationRates",
		},
		{
			sweep: "1:0.5:0.1",
			err:   "requires low <= high and step > 0",
		},
		{
			sweep: "0:1:0",
			err:   "requires low <= high and step > 0",
		},
		{
			sweep: "0:1:-0.1",
			err:   "requires low <= high and step > 0",
		},
	}
	for _, test := range tests {
		rates, err := parseRates(test.rate, test.sweep)
		if test.err != "" {
			if err == nil {
				t.Errorf("%s: expected an error", test.sweep)
			} else if !strings.Contains(err.Error(), test.err) {
				t.Errorf("%s: unexpected error %v", test.sweep, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", test.sweep, err)
			continue
		}
		if len(rates) != len(test.want) {
			t.Errorf("%s: want %v but have %v", test.sweep, test.want, rates)
			continue
		}
		for i, want := range test.want {
			if math.Abs(rates[i]-want) > 1.e-9 {
				t.Errorf("%s: rate %d should be %g but is %g", test.sweep, i, want, rates[i])
			}
		}
	}
}

func TestToFloat64SliceE(t *testing.T) {
	tests := []struct {
		in   interface{}
		want []float64
		err  bool
	}{
		{in: []float64{0, 0, 500, 400}, want: []float64{0, 0, 500, 400}},
		{in: []interface{}{0.5, int64(2)}, want: []float64{0.5, 2}},
		{in: []interface{}{"x"}, err: true},
		{in: "[0, 0, 500, 400]", want: []float64{0, 0, 500, 400}},
		{in: "", want: nil},
		{in: nil, want: nil},
		{in: "not json", err: true},
		{in: 42, err: true},
	}
	for _, test := range tests {
		have, err := toFloat64SliceE(test.in)
		if test.err {
			if err == nil {
				t.Errorf("%#v: expected an error", test.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%#v: %v", test.in, err)
			continue
		}
		if !reflect.DeepEqual(have, test.want) {
			t.Errorf("%#v: want %v but have %v", test.in, test.want, have)
		}
	}
}

func TestGetStringMapString(t *testing.T) {
	want := map[string]string{"Generated": "Generated", "Deficit": "Generated - Collected"}

	cfg := viper.New()
	cfg.Set("fromMap", map[string]string{"Generated": "Generated", "Deficit": "Generated - Collected"})
	cfg.Set("fromInterfaceMap", map[string]interface{}{"Generated": "Generated", "Deficit": "Generated - Collected"})
	cfg.Set("fromJSON", `{"Generated": "Generated", "Deficit": "Generated - Collected"}`)

	for _, varName := range []string{"fromMap", "fromInterfaceMap", "fromJSON"} {
		if have := GetStringMapString(varName, cfg); !reflect.DeepEqual(have, want) {
			t.Errorf("%s: want %v but have %v", varName, want, have)
		}
	}
}

func TestWasteMapConfig(t *testing.T) {
	cfg := viper.New()
	cfg.Set("PopulationFile", "testPopulation.ncf")
	cfg.Set("PopulationVar", "population")
	cfg.Set("GridProj", "+proj=longlat")
	cfg.Set("StudyBounds", "[0, 0, 500, 400]")
	cfg.Set("ZoneFiles", []string{"testZones.shp", "testZones.dbf", "testZones.prj"})
	cfg.Set("ZoneNameField", "NAME")
	cfg.Set("ZoneJurisdictionField", "MUNI")
	cfg.Set("Jurisdiction", "Springfield")
	cfg.Set("ServiceAreaFiles", []string{"testServiceAreas.shp"})
	cfg.Set("ServiceAreaNameField", "NAME")
	cfg.Set("CollectedField", "COLLECTED")
	cfg.Set("CollectionUnits", "t/week")
	cfg.Set("CollectionFile", "testCollection.xlsx")
	cfg.Set("CollectionSheet", "Collections")
	cfg.Set("Statistic", "sum")
	cfg.Set("MaxCacheEntries", 10)

	c, err := WasteMapConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := &wastemap.Config{
		PopulationFile:        "testPopulation.ncf",
		PopulationVar:         "population",
		GridProj:              "+proj=longlat",
		StudyBounds:           []float64{0, 0, 500, 400},
		ZoneFiles:             []string{"testZones.shp"},
		ZoneNameField:         "NAME",
		ZoneJurisdictionField: "MUNI",
		Jurisdiction:          "Springfield",
		ServiceAreaFiles:      []string{"testServiceAreas.shp"},
		ServiceAreaNameField:  "NAME",
		CollectedField:        "COLLECTED",
		CollectionUnits:       "t/week",
		CollectionFile:        "testCollection.xlsx",
		CollectionSheet:       "Collections",
		Statistic:             "sum",
		MaxCacheEntries:       10,
	}
	if !reflect.DeepEqual(c, want) {
		t.Errorf("want %+v but have %+v", want, c)
	}

	cfg.Set("StudyBounds", "[0, 0, 500]")
	if _, err := WasteMapConfig(cfg); err == nil {
		t.Error("a 3-element StudyBounds should cause an error")
	} else if !strings.Contains(err.Error(), "StudyBounds must have the form [W, S, E, N] but has 3 elements") {
		t.Errorf("unexpected error %v", err)
	}

	cfg.Set("StudyBounds", "nonsense")
	if _, err := WasteMapConfig(cfg); err == nil {
		t.Error("an unparsable StudyBounds should cause an error")
	} else if !strings.Contains(err.Error(), "StudyBounds:") {
		t.Errorf("unexpected error %v", err)
	}
}
