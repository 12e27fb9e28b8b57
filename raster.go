/*
Copyright © 2026 the locisol authors.
This file is part of locisol.

locisol is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

locisol is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with locisol.  If not, see <http://www.gnu.org/licenses/>.
*/

package locisol

import (
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// DefaultCostVariable is the name of the NetCDF variable holding cell
// traversal costs.
const DefaultCostVariable = "cost"

// CostRaster is a single-band grid of per-cell traversal costs. Row 0 is
// the southernmost row and column 0 the westernmost column. Cells holding
// NoData, NaN, infinite, or negative values are impassable.
// A CostRaster is never modified after it is created, so it can be shared
// among goroutines.
type CostRaster struct {
	NX, NY int

	// X0 and Y0 are the coordinates of the lower-left corner of the grid.
	X0, Y0 float64

	// Dx and Dy are the cell sizes.
	Dx, Dy float64

	// NoData marks cells without data. NaN means none is set.
	NoData float64

	// SR is the spatial reference of the grid. It may be nil.
	SR *proj.SR

	proj4 string
	data  *sparse.DenseArray
}

// NewCostRaster creates a raster from row-major cost values, starting
// with the southernmost row.
func NewCostRaster(nx, ny int, x0, y0, dx, dy float64, values []float64) (*CostRaster, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("locisol: invalid raster dimensions %dx%d", nx, ny)
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("locisol: invalid raster cell size %gx%g", dx, dy)
	}
	if len(values) != nx*ny {
		return nil, fmt.Errorf("locisol: raster is %dx%d but has %d values", nx, ny, len(values))
	}
	d := sparse.ZerosDense(ny, nx)
	copy(d.Elements, values)
	return &CostRaster{
		NX: nx, NY: ny,
		X0: x0, Y0: y0,
		Dx: dx, Dy: dy,
		NoData: math.NaN(),
		data:   d,
	}, nil
}

// SetProjection sets the spatial reference of r from a PROJ.4 string.
func (r *CostRaster) SetProjection(proj4 string) error {
	sr, err := proj.Parse(proj4)
	if err != nil {
		return fmt.Errorf("locisol: parsing raster projection: %w", err)
	}
	r.SR = sr
	r.proj4 = proj4
	return nil
}

// Cell returns the column and row of the cell containing (x, y).
func (r *CostRaster) Cell(x, y float64) (col, row int, ok bool) {
	fc := math.Floor((x - r.X0) / r.Dx)
	fr := math.Floor((y - r.Y0) / r.Dy)
	if fc < 0 || fr < 0 || fc >= float64(r.NX) || fr >= float64(r.NY) {
		return 0, 0, false
	}
	return int(fc), int(fr), true
}

// Center returns the coordinates of the center of a cell.
func (r *CostRaster) Center(col, row int) geom.Point {
	return geom.Point{
		X: r.X0 + (float64(col)+0.5)*r.Dx,
		Y: r.Y0 + (float64(row)+0.5)*r.Dy,
	}
}

// Cost returns the traversal cost of a cell.
func (r *CostRaster) Cost(col, row int) float64 {
	return r.data.Get(row, col)
}

// Passable reports whether a cell can be traversed.
func (r *CostRaster) Passable(col, row int) bool {
	if col < 0 || row < 0 || col >= r.NX || row >= r.NY {
		return false
	}
	v := r.Cost(col, row)
	return !(math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v == r.NoData)
}

// OpenCostRaster reads the cost raster stored as variable in the NetCDF
// file at filename.
func OpenCostRaster(filename, variable string) (*CostRaster, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &LoadError{Source: filename, Err: err}
	}
	defer f.Close()
	r, err := LoadCostRaster(f, variable)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Source = filename
		}
		return nil, err
	}
	return r, nil
}

// LoadCostRaster reads a cost raster from a NetCDF file. The file must
// have the global attributes x0, y0, dx, dy, nx, and ny, and the variable
// must have dimensions (y, x). The optional attributes proj4 and nodata
// set the spatial reference and the NoData value.
func LoadCostRaster(rw cdf.ReaderWriterAt, variable string) (*CostRaster, error) {
	const src = "cost raster"
	if variable == "" {
		variable = DefaultCostVariable
	}
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, &LoadError{Source: src, Err: err}
	}
	r := &CostRaster{NoData: math.NaN()}
	for _, a := range []struct {
		name string
		v    *float64
	}{{"x0", &r.X0}, {"y0", &r.Y0}, {"dx", &r.Dx}, {"dy", &r.Dy}} {
		v, ok := f.Header.GetAttribute("", a.name).([]float64)
		if !ok || len(v) == 0 {
			return nil, loadErrorf(src, "missing float64 attribute %s", a.name)
		}
		*a.v = v[0]
	}
	for _, a := range []struct {
		name string
		v    *int
	}{{"nx", &r.NX}, {"ny", &r.NY}} {
		v, ok := f.Header.GetAttribute("", a.name).([]int32)
		if !ok || len(v) == 0 {
			return nil, loadErrorf(src, "missing int32 attribute %s", a.name)
		}
		*a.v = int(v[0])
	}
	if v, ok := f.Header.GetAttribute("", "nodata").([]float64); ok && len(v) > 0 {
		r.NoData = v[0]
	}
	if p, ok := f.Header.GetAttribute("", "proj4").(string); ok && p != "" {
		if err := r.SetProjection(p); err != nil {
			return nil, &LoadError{Source: src, Err: err}
		}
	}

	dims := f.Header.Lengths(variable)
	if len(dims) == 0 {
		return nil, loadErrorf(src, "variable %s not in file", variable)
	}
	if len(dims) != 2 || dims[0] != r.NY || dims[1] != r.NX {
		return nil, loadErrorf(src, "variable %s has dimensions %v, want [%d %d]", variable, dims, r.NY, r.NX)
	}
	rd := f.Reader(variable, nil, nil)
	buf := rd.Zero(-1)
	if _, err = rd.Read(buf); err != nil {
		return nil, loadErrorf(src, "reading variable %s: %v", variable, err)
	}
	vals, ok := buf.([]float32)
	if !ok {
		return nil, loadErrorf(src, "variable %s is %T, want float32", variable, buf)
	}
	r.data = sparse.ZerosDense(dims...)
	for i, v := range vals {
		r.data.Elements[i] = float64(v)
	}
	return r, nil
}

// Write writes r to NetCDF file w as variable, in the format read by
// LoadCostRaster.
func (r *CostRaster) Write(w *os.File, variable string) error {
	if variable == "" {
		variable = DefaultCostVariable
	}
	h := cdf.NewHeader([]string{"y", "x"}, []int{r.NY, r.NX})
	h.AddAttribute("", "comment", "locisol cost surface")
	h.AddAttribute("", "x0", []float64{r.X0})
	h.AddAttribute("", "y0", []float64{r.Y0})
	h.AddAttribute("", "dx", []float64{r.Dx})
	h.AddAttribute("", "dy", []float64{r.Dy})
	h.AddAttribute("", "nx", []int32{int32(r.NX)})
	h.AddAttribute("", "ny", []int32{int32(r.NY)})
	if !math.IsNaN(r.NoData) {
		h.AddAttribute("", "nodata", []float64{r.NoData})
	}
	if r.proj4 != "" {
		h.AddAttribute("", "proj4", r.proj4)
	}
	h.AddVariable(variable, []string{"y", "x"}, []float32{0})
	h.AddAttribute(variable, "description", "traversal cost per unit length")
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("locisol: writing cost raster: %w", err)
	}
	data32 := make([]float32, len(r.data.Elements))
	for i, e := range r.data.Elements {
		data32[i] = float32(e)
	}
	if _, err := f.Writer(variable, []int{0, 0}, []int{r.NY, r.NX}).Write(data32); err != nil {
		return fmt.Errorf("locisol: writing cost raster variable %s: %w", variable, err)
	}
	return cdf.UpdateNumRecs(w)
}
