package wastemap

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

func init() {
	gob.Register(geom.Polygon{})
	gob.Register(geom.MultiPolygon{})
	gob.Register(&geom.Bounds{})
}

// snapshot holds loaded assessment inputs in a form that can be written
// to a gob file.
type snapshot struct {
	Config   *Config
	Data     *sparse.DenseArray
	T        Transform
	NoData   float64
	Zones    []*Zone
	Areas    []*ServiceArea
	Reported map[string]float64
}

// Save writes the loaded assessment inputs to w as a gob file
// (format description at https://golang.org/pkg/encoding/gob/) so that
// later invocations can skip reading the raster and shapefiles.
func (a *Assessment) Save(w io.Writer) error {
	e := gob.NewEncoder(w)

	s := snapshot{
		Config:   a.config,
		Data:     a.window.Data,
		T:        a.window.T,
		NoData:   a.window.NoData,
		Zones:    a.zones,
		Areas:    a.areas,
		Reported: a.reported,
	}
	if err := e.Encode(s); err != nil {
		return fmt.Errorf("wastemap.Assessment.Save: %v", err)
	}
	return nil
}

// LoadAssessment creates an Assessment from a previously Saved file.
func LoadAssessment(r io.Reader) (*Assessment, error) {
	dec := gob.NewDecoder(r)
	var s snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("wastemap.LoadAssessment: %v", err)
	}
	return s.init()
}

func (s *snapshot) init() (*Assessment, error) {
	// Restore the unexported array fields that gob does not carry.
	s.Data.Fix()
	a := &Assessment{
		Log:      logrus.StandardLogger(),
		config:   s.Config,
		window:   &Window{Data: s.Data, T: s.T, NoData: s.NoData},
		zones:    s.Zones,
		areas:    s.Areas,
		reported: s.Reported,
	}
	stat, err := ParseStatistic(s.Config.Statistic)
	if err != nil {
		return nil, err
	}
	a.stat = stat
	a.areaZones = make([]*Zone, len(a.areas))
	for i, sa := range a.areas {
		a.areaZones[i] = &sa.Zone
	}
	a.pop, err = Aggregate(a.areaZones, a.window, Sum)
	if err != nil {
		return nil, err
	}
	return a, nil
}
