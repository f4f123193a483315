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
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/requestcache"
	"github.com/ctessum/unit"
	"github.com/tealeg/xlsx"
)

const (
	secondsPerDay  = 3600 * 24
	secondsPerWeek = secondsPerDay * daysPerWeek
)

// massPerTime is the dimensionality of a waste collection rate.
var massPerTime = unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -1}

// collectionConv returns the factor for converting reported collection
// amounts in the given units to tonnes/week; options are t/week,
// kg/week, and kg/day.
func collectionConv(units string) (float64, error) {
	var u *unit.Unit
	switch units {
	case "t/week", "tonnes/week":
		u = unit.Div(unit.New(kgPerTonne, unit.Kilogram), unit.New(secondsPerWeek, unit.Second))
	case "kg/week":
		u = unit.Div(unit.New(1, unit.Kilogram), unit.New(secondsPerWeek, unit.Second))
	case "kg/day":
		u = unit.Div(unit.New(1, unit.Kilogram), unit.New(secondsPerDay, unit.Second))
	default:
		return 0, fmt.Errorf("wastemap: invalid collection units '%s'; options are t/week, kg/week, and kg/day", units)
	}
	return tonnesPerWeek(u)
}

// tonnesPerWeek expresses the collection rate u in tonnes/week,
// returning an error if u is not a mass per time.
func tonnesPerWeek(u *unit.Unit) (float64, error) {
	if !u.Dimensions().Matches(massPerTime) {
		return 0, fmt.Errorf("wastemap: collection rate has dimensions %v; need %v", u.Dimensions(), massPerTime)
	}
	week := unit.Div(unit.New(kgPerTonne, unit.Kilogram), unit.New(secondsPerWeek, unit.Second))
	return unit.Div(u, week).Value(), nil
}

// excelCache holds previously opened Microsoft Excel files
// to avoid reading the same file multiple times.
var excelCache *requestcache.Cache

var loadExcelCacheOnce sync.Once

// loadExcelFile loads an Microsoft Excel file from disk, utizilizing
// a cache to avoid loading the same file more than once.
func loadExcelFile(fileName string) (*xlsx.File, error) {
	// Create a request cache to avoid loading files more than once.
	loadExcelCacheOnce.Do(func() {
		excelCache = requestcache.NewCache(func(ctx context.Context, req interface{}) (interface{}, error) {
			filename := req.(string)
			f, err := xlsx.OpenFile(filename)
			if err != nil {
				return nil, fmt.Errorf("wastemap: opening xlsx file: %v", err)
			}
			return f, nil
		}, runtime.GOMAXPROCS(-1), requestcache.Memory(1000))
	})
	// Get the file from the cache or generate it.
	r := excelCache.NewRequest(context.Background(), fileName, fileName)
	fI, err := r.Result()
	if err != nil {
		return nil, err
	}
	return fI.(*xlsx.File), nil
}

// ReadCollectionTotals reads reported waste collection totals from the
// given Microsoft Excel file and sheet. The first column holds service
// area names and the second column holds the collected amount in the
// given units; options are t/week, kg/week, and kg/day. The first row
// is assumed to be a header and is skipped, and reading stops at the
// first row with an empty name. The returned totals are keyed by
// service area name, in units of tonnes/week.
func ReadCollectionTotals(fileName, sheet, units string) (map[string]float64, error) {
	conv, err := collectionConv(units)
	if err != nil {
		return nil, err
	}
	f, err := loadExcelFile(fileName)
	if err != nil {
		return nil, err
	}
	s, ok := f.Sheet[sheet]
	if !ok {
		return nil, fmt.Errorf("wastemap: reading collection totals from Excel; no sheet %s", sheet)
	}

	o := make(map[string]float64)

	for j := 1; j < s.MaxRow; j++ {
		name := strings.TrimSpace(s.Cell(j, 0).Value)
		if name == "" {
			break
		}
		if _, ok := o[name]; ok {
			return nil, fmt.Errorf("wastemap: reading collection totals from Excel: duplicate service area name '%s'", name)
		}
		cellString := s.Cell(j, 1).Value
		var v float64
		if cellString != "" { // v = 0 for empty cells.
			v, err = strconv.ParseFloat(cellString, 64)
			if err != nil {
				return nil, fmt.Errorf("wastemap: reading collection totals from Excel: %v", err)
			}
		}
		o[name] = v * conv
	}
	return o, nil
}
