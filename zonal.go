/*
Copyright © 2019 the WasteMap authors.
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
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/floats"
)

// A Zone is a named polygon over which raster values are aggregated.
type Zone struct {
	geom.Polygonal

	// Name is the zone's display name, unique within its collection.
	Name string

	// Jurisdiction is the label of the superordinate jurisdiction the
	// zone belongs to, when the source data carries one.
	Jurisdiction string
}

// A ServiceArea is the territory of one waste-collection provider.
type ServiceArea struct {
	Zone

	// Collected is the provider's reported collection total
	// [tonnes/week]. It comes from reported data, never from the
	// raster.
	Collected float64
}

// A ZonalResult pairs a zone name with its aggregate value. Value is
// NaN when the zone covers no valid cells; that is distinct from a
// zone whose covered cells sum to zero.
type ZonalResult struct {
	Name  string
	Value float64
}

// A Statistic names a zonal aggregate.
type Statistic string

// The supported zonal statistics. Mean is normalized by coverage
// weight, and Count is the total coverage weight of valid cells.
const (
	Sum   Statistic = "sum"
	Mean  Statistic = "mean"
	Min   Statistic = "min"
	Max   Statistic = "max"
	Count Statistic = "count"
)

// ParseStatistic validates a statistic name from configuration.
func ParseStatistic(s string) (Statistic, error) {
	switch Statistic(s) {
	case Sum, Mean, Min, Max, Count:
		return Statistic(s), nil
	case "":
		return Sum, nil
	}
	return "", fmt.Errorf("wastemap: invalid statistic '%s'; options are sum, mean, min, max, and count", s)
}

// A gridCell is one window pixel materialized as a georeferenced
// polygon for intersection searches.
type gridCell struct {
	geom.Polygonal
	row, col int
	area     float64
}

// index materializes the window's pixels into an r-tree, once.
func (w *Window) index() *rtree.Rtree {
	w.cellsOnce.Do(func() {
		w.cells = rtree.NewTree(25, 50)
		for r := 0; r < w.Rows(); r++ {
			for c := 0; c < w.Cols(); c++ {
				cell := &gridCell{Polygonal: w.T.CellGeom(c, r), row: r, col: c}
				cell.area = cell.Polygonal.Area()
				w.cells.Insert(cell)
			}
		}
	})
	return w.cells
}

// Aggregate computes one aggregate statistic of the window's values
// over each zone. Every cell a zone overlaps contributes its value
// weighted by the exact fraction of the cell's area the zone covers,
// so boundary cells are counted fractionally rather than all or
// nothing. Cells holding the window's no-data marker or NaN are
// excluded from both the value and the weight. A zone covering no
// valid cells gets a NaN result.
//
// Zones are processed in parallel; the returned results match the
// input zone order, and the window is only read.
func Aggregate(zones []*Zone, w *Window, stat Statistic) ([]ZonalResult, error) {
	if _, err := ParseStatistic(string(stat)); err != nil {
		return nil, err
	}
	index := w.index()
	results := make([]ZonalResult, len(zones))
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for procnum := 0; procnum < nprocs; procnum++ {
		go func(procnum int) {
			defer wg.Done()
			for i := procnum; i < len(zones); i += nprocs {
				results[i] = ZonalResult{
					Name:  zones[i].Name,
					Value: zoneStat(zones[i].Polygonal, w, index, stat),
				}
			}
		}(procnum)
	}
	wg.Wait()
	return results, nil
}

// zoneStat aggregates the valid window cells overlapping zone z.
func zoneStat(z geom.Polygonal, w *Window, index *rtree.Rtree, stat Statistic) float64 {
	var vals, weighted, weights []float64
	for _, cI := range index.SearchIntersect(z.Bounds()) {
		cell := cI.(*gridCell)
		v := w.Data.Get(cell.row, cell.col)
		if math.IsNaN(v) || v == w.NoData {
			continue
		}
		isect := cell.Intersection(z)
		if isect == nil {
			continue
		}
		frac := isect.Area() / cell.area
		if frac <= 0 {
			continue
		}
		vals = append(vals, v)
		weighted = append(weighted, v*frac)
		weights = append(weights, frac)
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	switch stat {
	case Mean:
		return floats.Sum(weighted) / floats.Sum(weights)
	case Min:
		return floats.Min(vals)
	case Max:
		return floats.Max(vals)
	case Count:
		return floats.Sum(weights)
	default: // Sum
		return floats.Sum(weighted)
	}
}
