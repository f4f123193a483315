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
	"sort"
)

// A RankEntry is one (name, value) pair of a ranking.
type RankEntry struct {
	Name  string
	Value float64
}

// A Ranking is a sequence of named values sorted descending by value.
// Ties keep their input order, and NaN values sort after every defined
// value (in input order among themselves) rather than mixing with
// zeros.
type Ranking []RankEntry

// rank sorts entries in place, descending, stable, NaN last.
func rank(o Ranking) Ranking {
	sort.SliceStable(o, func(i, j int) bool {
		vi, vj := o[i].Value, o[j].Value
		if math.IsNaN(vi) {
			return false
		}
		if math.IsNaN(vj) {
			return true
		}
		return vi > vj
	})
	return o
}

// RankGeneration ranks zones by aggregated generated mass, largest
// first.
func RankGeneration(results []ZonalResult) Ranking {
	o := make(Ranking, len(results))
	for i, r := range results {
		o[i] = RankEntry{Name: r.Name, Value: r.Value}
	}
	return rank(o)
}

// ReportedTotals keys the reported collection totals [tonnes/week] of
// the given service areas by zone name.
func ReportedTotals(areas []*ServiceArea) map[string]float64 {
	o := make(map[string]float64, len(areas))
	for _, a := range areas {
		o[a.Name] = a.Collected
	}
	return o
}

// RankDeficit ranks service areas by uncollected mass, largest first,
// where uncollected = generated - reported for each service area.
// Reported totals are matched to aggregates by zone name, so the two
// inputs need not share an iteration order; a name with no reported
// total is an error. A negative deficit (reported collection exceeding
// modeled generation) is a meaningful result and is kept as is. An
// undefined (NaN) aggregate yields an undefined deficit, ranked last.
func RankDeficit(results []ZonalResult, reported map[string]float64) (Ranking, error) {
	o := make(Ranking, len(results))
	for i, r := range results {
		coll, ok := reported[r.Name]
		if !ok {
			return nil, fmt.Errorf("wastemap: missing reported collection total for service area '%s'", r.Name)
		}
		o[i] = RankEntry{Name: r.Name, Value: r.Value - coll}
	}
	return rank(o), nil
}
