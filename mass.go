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
	"math"

	"github.com/ctessum/sparse"
)

const (
	daysPerWeek = 7
	kgPerTonne  = 1000
)

// MassGrid converts a population-count window into a weekly
// waste-mass window [tonnes/week] using the per-capita generation
// rate [kg/person/day]:
//
//	mass = population * rate * 7 / 1000
//
// Cells holding the no-data marker, NaN, or a negative count (the
// usual encoding of no-data in population rasters) become NaN before
// any arithmetic so that sentinel values can never leak into mass
// totals. The receiver is not modified; the result shares its
// transform and has NaN as its no-data marker.
//
// The rate must be positive; validating it is the caller's job.
func (w *Window) MassGrid(rate float64) *Window {
	o := sparse.ZerosDense(w.Data.Shape...)
	f := rate * daysPerWeek / kgPerTonne
	for i, v := range w.Data.Elements {
		if math.IsNaN(v) || v == w.NoData || v < 0 {
			o.Elements[i] = math.NaN()
			continue
		}
		o.Elements[i] = v * f
	}
	return &Window{Data: o, T: w.T, NoData: math.NaN()}
}
