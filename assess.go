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

package wastemap

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"
	"runtime"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/wastemap/internal/hash"
)

// Config holds the input data locations and parameters for a waste
// generation and collection assessment.
type Config struct {
	// PopulationFile is the path of the NetCDF file holding gridded
	// population counts [people per grid cell].
	PopulationFile string

	// PopulationVar is the name of the population variable within
	// PopulationFile. The default is "population".
	PopulationVar string

	// GridProj is the proj4 specification of the spatial projection the
	// population raster and StudyBounds are in. Zone shapefiles are
	// reprojected to this projection when loaded.
	GridProj string

	// StudyBounds specifies the assessment area as [W, S, E, N] in the
	// raster coordinate system.
	StudyBounds []float64

	// StudyMask is the path of a GeoJSON file containing a polygon whose
	// bounding box defines the assessment area. When set, it takes
	// precedence over StudyBounds.
	StudyMask string

	// ZoneFiles are the paths of shapefiles holding administrative zone
	// polygons to be ranked by waste generation.
	ZoneFiles []string

	// ZoneNameField is the attribute column holding zone names.
	ZoneNameField string

	// ZoneJurisdictionField is the attribute column holding the name of
	// the superordinate jurisdiction each zone belongs to. It may be
	// empty.
	ZoneJurisdictionField string

	// Jurisdiction, if non-empty, limits the assessment to zones whose
	// ZoneJurisdictionField attribute matches it.
	Jurisdiction string

	// ServiceAreaFiles are the paths of shapefiles holding waste
	// collection service area polygons.
	ServiceAreaFiles []string

	// ServiceAreaNameField is the attribute column holding service area
	// names.
	ServiceAreaNameField string

	// CollectedField is the attribute column holding the reported amount
	// of waste collected in each service area.
	CollectedField string

	// CollectionUnits gives the units of the reported collection
	// amounts; options are t/week, kg/week, and kg/day. The default is
	// t/week.
	CollectionUnits string

	// CollectionFile is the path of an optional Microsoft Excel
	// spreadsheet of reported collection totals that override the
	// CollectedField attributes. The first column holds service area
	// names and the second column holds collected amounts in
	// CollectionUnits, with one header row.
	CollectionFile string

	// CollectionSheet is the name of the sheet within CollectionFile
	// holding the collection totals.
	CollectionSheet string

	// Statistic is the zonal aggregation statistic for waste generation;
	// options are sum, mean, min, max, and count. The default is sum.
	Statistic string

	// MaxCacheEntries is the number of assessment results to hold in an
	// in-memory cache. The default is 100.
	MaxCacheEntries int
}

// LoadConfig reads an assessment configuration from r in TOML format.
func LoadConfig(r io.Reader) (*Config, error) {
	c := new(Config)
	if _, err := toml.DecodeReader(r, c); err != nil {
		return nil, fmt.Errorf("wastemap: parsing configuration file: %v", err)
	}
	return c, nil
}

// studyArea returns the bounding box of the assessment area specified by
// the configuration.
func (cfg *Config) studyArea() (*geom.Bounds, error) {
	if cfg.StudyMask != "" {
		mask, err := parseMask(cfg.StudyMask)
		if err != nil {
			return nil, err
		}
		return mask.Bounds(), nil
	}
	if len(cfg.StudyBounds) != 4 {
		return nil, fmt.Errorf("wastemap: the StudyBounds configuration variable needs 4 values [W, S, E, N] but has %d", len(cfg.StudyBounds))
	}
	w, s, e, n := cfg.StudyBounds[0], cfg.StudyBounds[1], cfg.StudyBounds[2], cfg.StudyBounds[3]
	if w >= e || s >= n {
		return nil, fmt.Errorf("wastemap: invalid StudyBounds [W, S, E, N] = %v; need W < E and S < N", cfg.StudyBounds)
	}
	return &geom.Bounds{Min: geom.Point{X: w, Y: s}, Max: geom.Point{X: e, Y: n}}, nil
}

// parseMask returns the polygon represented by the given GeoJSON file.
func parseMask(maskGeoJSONFile string) (geom.Polygon, error) {
	f, err := os.Open(os.ExpandEnv(maskGeoJSONFile))
	if err != nil {
		return nil, fmt.Errorf("opening study mask file: %w", err)
	}
	defer f.Close()
	b, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading study mask file: %w", err)
	}
	j, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding StudyMask: %w", err)
	}
	var mask geom.Polygon
	switch msk := j.(type) {
	case geom.Polygon:
		mask = msk
	case geom.MultiPolygon:
		for _, p := range msk {
			mask = append(mask, p...)
		}
	default:
		return nil, fmt.Errorf("invalid study mask geometry type %T", j)
	}
	return mask, nil
}

// Assessment holds the input data for waste generation and collection
// assessments of one study area. The data are loaded once; Run can then
// be called any number of times with different waste generation rates.
type Assessment struct {
	// Log is the logger to use. The default is logrus.StandardLogger().
	Log logrus.FieldLogger

	config *Config

	window    *Window // population counts
	zones     []*Zone
	areas     []*ServiceArea
	areaZones []*Zone // the areas' zone records in the same order
	pop       []ZonalResult
	reported  map[string]float64
	stat      Statistic

	loadRunOnce sync.Once
	runCache    *requestcache.Cache
}

// NewAssessment loads the population window, zones, service areas, and
// reported collection totals specified by cfg.
func NewAssessment(ctx context.Context, cfg *Config) (*Assessment, error) {
	a := &Assessment{
		Log:    logrus.StandardLogger(),
		config: cfg,
	}

	stat, err := ParseStatistic(cfg.Statistic)
	if err != nil {
		return nil, err
	}
	a.stat = stat

	if cfg.GridProj == "" {
		return nil, fmt.Errorf("wastemap: you need to specify the raster projection in the 'GridProj' configuration variable")
	}
	sr, err := proj.Parse(cfg.GridProj)
	if err != nil {
		return nil, fmt.Errorf("wastemap: while parsing the GridProj configuration variable: %v", err)
	}

	b, err := cfg.studyArea()
	if err != nil {
		return nil, err
	}

	popVar := cfg.PopulationVar
	if popVar == "" {
		popVar = "population"
	}
	f, err := os.Open(os.ExpandEnv(cfg.PopulationFile))
	if err != nil {
		return nil, fmt.Errorf("wastemap: opening population file: %v", err)
	}
	defer f.Close()
	raster, err := NewRaster(f, popVar)
	if err != nil {
		return nil, err
	}
	a.window, err = raster.ExtractWindow(b)
	if err != nil {
		return nil, err
	}
	a.Log.WithFields(logrus.Fields{
		"rows": a.window.Rows(),
		"cols": a.window.Cols(),
	}).Info("extracted population window")

	msgs := a.msgChan()
	defer close(msgs)

	if cfg.ZoneNameField == "" {
		return nil, fmt.Errorf("wastemap: you need to specify the ZoneNameField configuration variable")
	}
	a.zones, err = ReadZones(sr, cfg.ZoneNameField, cfg.ZoneJurisdictionField, cfg.Jurisdiction, msgs, cfg.ZoneFiles...)
	if err != nil {
		return nil, err
	}

	if cfg.ServiceAreaNameField == "" {
		return nil, fmt.Errorf("wastemap: you need to specify the ServiceAreaNameField configuration variable")
	}
	units := cfg.CollectionUnits
	if units == "" {
		units = "t/week"
	}
	a.areas, err = ReadServiceAreas(sr, cfg.ServiceAreaNameField, cfg.CollectedField, units, msgs, cfg.ServiceAreaFiles...)
	if err != nil {
		return nil, err
	}
	a.areaZones = make([]*Zone, len(a.areas))
	for i, sa := range a.areas {
		a.areaZones[i] = &sa.Zone
	}

	if cfg.CollectionFile != "" {
		a.reported, err = ReadCollectionTotals(os.ExpandEnv(cfg.CollectionFile), cfg.CollectionSheet, units)
		if err != nil {
			return nil, err
		}
	} else {
		a.reported = ReportedTotals(a.areas)
	}

	// Population totals are rate-independent, so aggregate them once.
	a.pop, err = Aggregate(a.areaZones, a.window, Sum)
	if err != nil {
		return nil, err
	}

	a.Log.WithFields(logrus.Fields{
		"zones":        len(a.zones),
		"serviceAreas": len(a.areas),
	}).Info("loaded assessment inputs")

	return a, nil
}

// msgChan returns a channel that logs the status messages sent to it.
func (a *Assessment) msgChan() chan string {
	c := make(chan string)
	go func() {
		for msg := range c {
			a.Log.Info(msg)
		}
	}()
	return c
}

// Zones returns the administrative zones the assessment was created with.
func (a *Assessment) Zones() []*Zone { return a.zones }

// ServiceAreas returns the service areas the assessment was created with.
func (a *Assessment) ServiceAreas() []*ServiceArea { return a.areas }

// Window returns the extracted population window.
func (a *Assessment) Window() *Window { return a.window }

// Proj returns the proj4 specification of the projection the assessment
// geometry is in.
func (a *Assessment) Proj() string { return a.config.GridProj }

// Results holds the outcome of an assessment run at a single waste
// generation rate.
type Results struct {
	// Rate is the per-capita waste generation rate the assessment was
	// run with [kg/person/day].
	Rate float64

	// Stat is the zonal aggregation statistic that was applied.
	Stat Statistic

	// Zones holds the aggregated waste generation in each administrative
	// zone [tonnes/week], in the same order as the zones the assessment
	// was created with. Values are NaN where undefined.
	Zones []ZonalResult

	// ServiceAreas holds the aggregated waste generation in each service
	// area [tonnes/week], in the same order as the service areas the
	// assessment was created with. Values are NaN where undefined.
	ServiceAreas []ZonalResult

	// Population holds the total population of each service area, in the
	// same order as ServiceAreas.
	Population []ZonalResult

	// Collected holds the reported collection total for each service
	// area [tonnes/week], in the same order as ServiceAreas.
	Collected []float64

	// ZoneGeneration and ServiceGeneration rank zones and service areas
	// by waste generation, most waste first.
	ZoneGeneration, ServiceGeneration Ranking

	// Deficit ranks service areas by the difference between generated
	// and reported collected waste, largest deficit first.
	Deficit Ranking
}

// runRequest specifies one assessment calculation.
type runRequest struct {
	Rate float64
	Stat Statistic
}

// Run executes the assessment with the given per-capita waste generation
// rate [kg/person/day]. Results are cached and deduplicated per rate, so
// a sweep over a range of rates recomputes only what changes between
// rates.
func (a *Assessment) Run(ctx context.Context, rate float64) (*Results, error) {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("wastemap: invalid waste generation rate %g; need a positive finite value", rate)
	}
	a.loadRunOnce.Do(func() {
		n := a.config.MaxCacheEntries
		if n <= 0 {
			n = 100
		}
		a.runCache = requestcache.NewCache(a.run, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(n))
	})
	req := runRequest{Rate: rate, Stat: a.stat}
	r := a.runCache.NewRequest(ctx, req, "run_"+hash.Hash(req))
	result, err := r.Result()
	if err != nil {
		return nil, err
	}
	return result.(*Results), nil
}

// run calculates the assessment results for one request.
func (a *Assessment) run(ctx context.Context, request interface{}) (interface{}, error) {
	req := request.(runRequest)

	mass := a.window.MassGrid(req.Rate)

	zoneGen, err := Aggregate(a.zones, mass, req.Stat)
	if err != nil {
		return nil, err
	}
	a.warnUndefined("zone", zoneGen)
	areaGen, err := Aggregate(a.areaZones, mass, req.Stat)
	if err != nil {
		return nil, err
	}
	a.warnUndefined("serviceArea", areaGen)
	deficit, err := RankDeficit(areaGen, a.reported)
	if err != nil {
		return nil, err
	}
	collected := make([]float64, len(areaGen))
	for i, r := range areaGen {
		collected[i] = a.reported[r.Name]
	}

	return &Results{
		Rate:              req.Rate,
		Stat:              req.Stat,
		Zones:             zoneGen,
		ServiceAreas:      areaGen,
		Population:        a.pop,
		Collected:         collected,
		ZoneGeneration:    RankGeneration(zoneGen),
		ServiceGeneration: RankGeneration(areaGen),
		Deficit:           deficit,
	}, nil
}

// warnUndefined logs the names of features whose aggregate is NaN,
// which happens when a feature covers no valid population cells.
func (a *Assessment) warnUndefined(kind string, results []ZonalResult) {
	for _, r := range results {
		if math.IsNaN(r.Value) {
			a.Log.WithFields(logrus.Fields{
				kind: r.Name,
			}).Warn("no valid population cells; aggregate is undefined")
		}
	}
}
