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
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/sparse"
)

// A Transform is an affine mapping between pixel indices and
// geographic coordinates, in the coefficient order
// (x origin, pixel width, row rotation, y origin, column rotation,
// pixel height). The origin is the outer corner of pixel (0, 0), and
// the pixel height is negative for north-up rasters.
type Transform [6]float64

// Coord returns the geographic coordinate of the fractional pixel
// index (col, row), where integer indices address pixel corners.
func (t Transform) Coord(col, row float64) geom.Point {
	return geom.Point{
		X: t[0] + col*t[1] + row*t[2],
		Y: t[3] + col*t[4] + row*t[5],
	}
}

// pixel returns the fractional pixel index containing the geographic
// point p, inverting the affine mapping.
func (t Transform) pixel(p geom.Point) (col, row float64, err error) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return 0, 0, fmt.Errorf("wastemap: degenerate affine transform %v", t)
	}
	dx := p.X - t[0]
	dy := p.Y - t[3]
	col = (dx*t[5] - dy*t[2]) / det
	row = (dy*t[1] - dx*t[4]) / det
	return col, row, nil
}

// CellGeom returns the geographic footprint of the pixel at (col, row).
// Rasters without rotation terms get an axis-aligned bounding box;
// rotated rasters get the full parallelogram.
func (t Transform) CellGeom(col, row int) geom.Polygonal {
	c, r := float64(col), float64(row)
	if t[2] == 0 && t[4] == 0 {
		p0 := t.Coord(c, r)
		p1 := t.Coord(c+1, r+1)
		return &geom.Bounds{
			Min: geom.Point{X: math.Min(p0.X, p1.X), Y: math.Min(p0.Y, p1.Y)},
			Max: geom.Point{X: math.Max(p0.X, p1.X), Y: math.Max(p0.Y, p1.Y)},
		}
	}
	return geom.Polygon{{
		t.Coord(c, r),
		t.Coord(c+1, r),
		t.Coord(c+1, r+1),
		t.Coord(c, r+1),
	}}
}

// bounds returns the extent of an nx × ny pixel block under t.
func (t Transform) bounds(nx, ny int) *geom.Bounds {
	b := geom.NewBounds()
	for _, p := range []geom.Point{
		t.Coord(0, 0),
		t.Coord(float64(nx), 0),
		t.Coord(0, float64(ny)),
		t.Coord(float64(nx), float64(ny)),
	} {
		b.Extend(&geom.Bounds{Min: p, Max: p})
	}
	return b
}

// OutOfBoundsError reports a requested window that does not intersect
// the raster extent at all.
type OutOfBoundsError struct {
	Requested, Extent *geom.Bounds
}

func (e OutOfBoundsError) Error() string {
	return fmt.Sprintf("wastemap: window %+v does not intersect raster extent %+v",
		*e.Requested, *e.Extent)
}

// A Raster is a single-band gridded data source backed by a NetCDF
// file. Georeferencing comes from the COARDS-style coordinate
// variables matching the band's two dimensions, which must be evenly
// spaced; the no-data marker comes from the band's _FillValue or
// missing_value attribute.
type Raster struct {
	cdf.File

	band   string
	nx, ny int
	t      Transform
	nodata float64
}

// NewRaster creates a Raster reading the variable band from r, which
// can be, for example, an os.File.
func NewRaster(r cdf.ReaderWriterAt, band string) (*Raster, error) {
	f, err := cdf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("wastemap: opening raster file: %v", err)
	}
	o := &Raster{File: *f, band: band}

	dims := f.Header.Dimensions(band)
	if dims == nil {
		return nil, fmt.Errorf("wastemap: raster variable %s is not in file", band)
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("wastemap: raster variable %s has %d dimensions; need 2", band, len(dims))
	}
	lengths := f.Header.Lengths(band)
	o.ny, o.nx = lengths[0], lengths[1]
	if o.nx < 1 || o.ny < 1 {
		return nil, fmt.Errorf("wastemap: raster variable %s is empty", band)
	}

	// dims[0] varies slowest, so it is the row (y) coordinate.
	ys, err := o.coordinates(dims[0])
	if err != nil {
		return nil, err
	}
	xs, err := o.coordinates(dims[1])
	if err != nil {
		return nil, err
	}
	dy, err := spacing(ys, dims[0])
	if err != nil {
		return nil, err
	}
	dx, err := spacing(xs, dims[1])
	if err != nil {
		return nil, err
	}
	// Coordinates give cell centers; the transform origin is the outer
	// corner of pixel (0, 0).
	o.t = Transform{xs[0] - dx/2, dx, 0, ys[0] - dy/2, 0, dy}

	o.nodata = math.NaN()
	for _, attr := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(f.Header, band, attr); ok {
			o.nodata = v
			break
		}
	}
	return o, nil
}

// coordinates reads the full coordinate variable named dim.
func (r *Raster) coordinates(dim string) ([]float64, error) {
	if r.File.Header.Dimensions(dim) == nil {
		return nil, fmt.Errorf("wastemap: raster file has no coordinate variable %s", dim)
	}
	rr := r.File.Reader(dim, nil, nil)
	buf := rr.Zero(-1)
	if _, err := rr.Read(buf); err != nil {
		return nil, fmt.Errorf("wastemap: reading raster coordinate %s: %v", dim, err)
	}
	return toFloat64s(buf, dim)
}

// spacing returns the uniform grid spacing of the coordinate vector
// vals, which keeps its sign: negative for descending coordinates.
func spacing(vals []float64, dim string) (float64, error) {
	if len(vals) == 1 {
		return 1, nil
	}
	d := vals[1] - vals[0]
	if d == 0 {
		return 0, fmt.Errorf("wastemap: raster coordinate %s has zero spacing", dim)
	}
	for i := 1; i < len(vals)-1; i++ {
		dd := vals[i+1] - vals[i]
		if math.Abs(dd-d) > math.Abs(d)*1.e-4 {
			return 0, fmt.Errorf("wastemap: raster coordinate %s is unevenly spaced (%g != %g at index %d)",
				dim, dd, d, i)
		}
	}
	return d, nil
}

func toFloat64s(buf interface{}, name string) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("wastemap: variable %s must be float32 or float64 but is %T", name, buf)
	}
}

// attrFloat extracts a scalar numeric attribute.
func attrFloat(h *cdf.Header, v, name string) (float64, bool) {
	switch a := h.GetAttribute(v, name).(type) {
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	}
	return 0, false
}

// Extent returns the geographic extent of the full raster.
func (r *Raster) Extent() *geom.Bounds { return r.t.bounds(r.nx, r.ny) }

// NoData returns the raster's native no-data marker, or NaN if the
// file does not declare one.
func (r *Raster) NoData() float64 { return r.nodata }

// A Window is an in-memory rectangular subset of a raster band
// together with its georeferencing. Values keep the source raster's
// encoding; no-data cells hold the NoData marker.
type Window struct {
	// Data holds the cell values with shape [rows, columns].
	Data *sparse.DenseArray

	// T maps pixel indices within the window to geographic
	// coordinates.
	T Transform

	// NoData is the no-data marker inherited from the source raster.
	NoData float64

	cellsOnce sync.Once
	cells     *rtree.Rtree
}

// Rows returns the window height in pixels.
func (w *Window) Rows() int { return w.Data.Shape[0] }

// Cols returns the window width in pixels.
func (w *Window) Cols() int { return w.Data.Shape[1] }

// Bounds returns the geographic extent of the window.
func (w *Window) Bounds() *geom.Bounds { return w.T.bounds(w.Cols(), w.Rows()) }

// ExtractWindow reads the minimal pixel window covering bounding box b,
// which must be given in the raster's native coordinate reference
// system. The window is rounded outward to whole pixels and clipped to
// the raster extent; a box that does not intersect the extent at all
// returns an OutOfBoundsError. Only the windowed rows and columns are
// read from the file.
func (r *Raster) ExtractWindow(b *geom.Bounds) (*Window, error) {
	cMin, cMax := math.Inf(1), math.Inf(-1)
	rMin, rMax := math.Inf(1), math.Inf(-1)
	for _, p := range []geom.Point{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Min.X, Y: b.Max.Y},
		{X: b.Max.X, Y: b.Max.Y},
	} {
		col, row, err := r.t.pixel(p)
		if err != nil {
			return nil, err
		}
		cMin = math.Min(cMin, col)
		cMax = math.Max(cMax, col)
		rMin = math.Min(rMin, row)
		rMax = math.Max(rMax, row)
	}
	c0 := int(math.Floor(cMin))
	c1 := int(math.Ceil(cMax))
	r0 := int(math.Floor(rMin))
	r1 := int(math.Ceil(rMax))
	if c0 < 0 {
		c0 = 0
	}
	if r0 < 0 {
		r0 = 0
	}
	if c1 > r.nx {
		c1 = r.nx
	}
	if r1 > r.ny {
		r1 = r.ny
	}
	if c1 <= c0 || r1 <= r0 {
		return nil, OutOfBoundsError{Requested: b, Extent: r.Extent()}
	}

	nc, nr := c1-c0, r1-r0
	data := sparse.ZerosDense(nr, nc)
	for j := 0; j < nr; j++ {
		rr := r.File.Reader(r.band, []int{r0 + j, c0}, []int{r0 + j, c0 + nc - 1})
		buf := rr.Zero(nc)
		if _, err := rr.Read(buf); err != nil {
			return nil, fmt.Errorf("wastemap: reading raster window row %d: %v", r0+j, err)
		}
		vals, err := toFloat64s(buf, r.band)
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			data.Set(v, j, i)
		}
	}

	origin := r.t.Coord(float64(c0), float64(r0))
	t := r.t
	t[0], t[3] = origin.X, origin.Y
	return &Window{Data: data, T: t, NoData: r.nodata}, nil
}
