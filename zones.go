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
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
)

// ReadZones loads administrative zone polygons from the given shapefiles,
// reprojecting each shape from the shapefile projection to gridSR.
// nameField is the attribute column holding zone names; every zone must
// have a unique, non-empty name. If jurisdictionField is non-empty, its
// attribute is stored with each zone, and if jurisdiction is also
// non-empty only shapes whose jurisdictionField attribute matches it are
// kept. Shapes with empty names are skipped.
// c is a channel over which status updates will be sent. If c is nil,
// no updates will be sent.
func ReadZones(gridSR *proj.SR, nameField, jurisdictionField, jurisdiction string, c chan string, shapefiles ...string) ([]*Zone, error) {
	var zones []*Zone
	seen := make(map[string]struct{})
	for _, fname := range shapefiles {
		if c != nil {
			c <- fmt.Sprintf("Loading zone shapefile: %s.", fname)
		}
		fname = strings.Replace(fname, ".shp", "", -1)
		f, err := shp.NewDecoder(fname + ".shp")
		if err != nil {
			return nil, fmt.Errorf("there was a problem reading the zone shapefile '%s'. "+
				"The error message was %v.", fname, err)
		}
		sr, err := f.SR()
		if err != nil {
			return nil, fmt.Errorf("there was a problem reading the projection information for "+
				"the zone shapefile '%s'. The error message was %v.", fname, err)
		}
		trans, err := sr.NewTransform(gridSR)
		if err != nil {
			return nil, fmt.Errorf("there was a problem creating a spatial reprojector for "+
				"the zone shapefile '%s'. The error message was %v.", fname, err)
		}
		fields := []string{nameField}
		if jurisdictionField != "" {
			fields = append(fields, jurisdictionField)
		}
		for {
			g, attrs, more := f.DecodeRowFields(fields...)
			if !more {
				break
			}
			name, ok := attrs[nameField]
			if !ok {
				return nil, fmt.Errorf("wastemap: loading zone shapefile %s: missing attribute column %s", fname, nameField)
			}
			name = strings.Trim(name, "\x00* ")
			if name == "" {
				if c != nil {
					c <- fmt.Sprintf("Skipping a shape in %s with an empty %s attribute.", fname, nameField)
				}
				continue
			}
			var jur string
			if jurisdictionField != "" {
				j, ok := attrs[jurisdictionField]
				if !ok {
					return nil, fmt.Errorf("wastemap: loading zone shapefile %s: missing attribute column %s", fname, jurisdictionField)
				}
				jur = strings.Trim(j, "\x00* ")
				if jurisdiction != "" && jur != jurisdiction {
					continue
				}
			}
			gg, err := g.Transform(trans)
			if err != nil {
				return nil, fmt.Errorf("there was a problem spatially reprojecting in "+
					"zone file %s. The error message was %v", fname, err)
			}
			var p geom.Polygonal
			switch gg.(type) {
			case geom.Polygonal:
				p = gg.(geom.Polygonal)
			default:
				return nil, fmt.Errorf("wastemap: loading zone shapefile %s: zone shapes must be polygons", fname)
			}
			if _, ok := seen[name]; ok {
				return nil, fmt.Errorf("wastemap: loading zone shapefile %s: duplicate zone name '%s'", fname, name)
			}
			seen[name] = struct{}{}
			zones = append(zones, &Zone{Polygonal: p, Name: name, Jurisdiction: jur})
		}
		f.Close()
		if err := f.Error(); err != nil {
			return nil, fmt.Errorf("problem reading zone shapefile."+
				"\nfile: %s\nerror: %v", fname, err)
		}
	}
	return zones, nil
}

// ReadServiceAreas loads collection service area polygons from the given
// shapefiles, reprojecting each shape from the shapefile projection to
// gridSR. nameField is the attribute column holding service area names;
// every service area must have a unique, non-empty name. collectedField
// is the attribute column holding the reported amount of waste collected
// in each area, in the given units; options are t/week, kg/week, and
// kg/day. Shapes with empty names are skipped.
// c is a channel over which status updates will be sent. If c is nil,
// no updates will be sent.
func ReadServiceAreas(gridSR *proj.SR, nameField, collectedField, units string, c chan string, shapefiles ...string) ([]*ServiceArea, error) {
	conv, err := collectionConv(units)
	if err != nil {
		return nil, err
	}
	var areas []*ServiceArea
	seen := make(map[string]struct{})
	for _, fname := range shapefiles {
		if c != nil {
			c <- fmt.Sprintf("Loading service area shapefile: %s.", fname)
		}
		fname = strings.Replace(fname, ".shp", "", -1)
		f, err := shp.NewDecoder(fname + ".shp")
		if err != nil {
			return nil, fmt.Errorf("there was a problem reading the service area shapefile '%s'. "+
				"The error message was %v.", fname, err)
		}
		sr, err := f.SR()
		if err != nil {
			return nil, fmt.Errorf("there was a problem reading the projection information for "+
				"the service area shapefile '%s'. The error message was %v.", fname, err)
		}
		trans, err := sr.NewTransform(gridSR)
		if err != nil {
			return nil, fmt.Errorf("there was a problem creating a spatial reprojector for "+
				"the service area shapefile '%s'. The error message was %v.", fname, err)
		}
		for {
			g, attrs, more := f.DecodeRowFields(nameField, collectedField)
			if !more {
				break
			}
			name, ok := attrs[nameField]
			if !ok {
				return nil, fmt.Errorf("wastemap: loading service area shapefile %s: missing attribute column %s", fname, nameField)
			}
			name = strings.Trim(name, "\x00* ")
			if name == "" {
				if c != nil {
					c <- fmt.Sprintf("Skipping a shape in %s with an empty %s attribute.", fname, nameField)
				}
				continue
			}
			s, ok := attrs[collectedField]
			if !ok {
				return nil, fmt.Errorf("wastemap: loading service area shapefile %s: missing attribute column %s", fname, collectedField)
			}
			v, err := s2f(s)
			if err != nil {
				return nil, fmt.Errorf("wastemap: loading service area shapefile %s: parsing %s value for '%s': %v", fname, collectedField, name, err)
			}
			if math.IsNaN(v) {
				return nil, fmt.Errorf("wastemap: loading service area shapefile %s: NaN %s value for '%s'", fname, collectedField, name)
			}
			gg, err := g.Transform(trans)
			if err != nil {
				return nil, fmt.Errorf("there was a problem spatially reprojecting in "+
					"service area file %s. The error message was %v", fname, err)
			}
			var p geom.Polygonal
			switch gg.(type) {
			case geom.Polygonal:
				p = gg.(geom.Polygonal)
			default:
				return nil, fmt.Errorf("wastemap: loading service area shapefile %s: service area shapes must be polygons", fname)
			}
			if _, ok := seen[name]; ok {
				return nil, fmt.Errorf("wastemap: loading service area shapefile %s: duplicate service area name '%s'", fname, name)
			}
			seen[name] = struct{}{}
			areas = append(areas, &ServiceArea{
				Zone:      Zone{Polygonal: p, Name: name},
				Collected: v * conv,
			})
		}
		f.Close()
		if err := f.Error(); err != nil {
			return nil, fmt.Errorf("problem reading service area shapefile."+
				"\nfile: %s\nerror: %v", fname, err)
		}
	}
	return areas, nil
}

func s2f(s string) (float64, error) {
	s = strings.Trim(s, "\x00* ")
	if s == "" {
		// null value
		return 0., nil
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err
}
