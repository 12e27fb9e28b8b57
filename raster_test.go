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
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
)

func TestCostRasterCells(t *testing.T) {
	r, err := NewCostRaster(3, 2, 10, 20, 0.5, 0.25, []float64{
		1, 2, math.NaN(),
		-1, math.Inf(1), 9,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		x, y     float64
		col, row int
		ok       bool
	}{
		{x: 10, y: 20, col: 0, row: 0, ok: true},
		{x: 11.2, y: 20.3, col: 2, row: 1, ok: true},
		{x: 11.5, y: 20, ok: false},
		{x: 10.1, y: 19.99, ok: false},
	} {
		col, row, ok := r.Cell(test.x, test.y)
		if ok != test.ok || (ok && (col != test.col || row != test.row)) {
			t.Errorf("(%g, %g): want (%d, %d, %v) but have (%d, %d, %v)",
				test.x, test.y, test.col, test.row, test.ok, col, row, ok)
		}
	}
	if c := r.Center(1, 1); c != (geom.Point{X: 10.75, Y: 20.375}) {
		t.Errorf("have center %v", c)
	}
	if r.Cost(1, 0) != 2 || r.Cost(2, 1) != 9 {
		t.Errorf("costs are not row-major from the south")
	}
	passable := [][]bool{{true, true, false}, {false, false, true}}
	for row := range passable {
		for col, want := range passable[row] {
			if r.Passable(col, row) != want {
				t.Errorf("cell (%d, %d): want passable %v", col, row, want)
			}
		}
	}
	if r.Passable(-1, 0) || r.Passable(3, 0) {
		t.Error("cells outside the raster are not passable")
	}
	r.NoData = 9
	if r.Passable(2, 1) {
		t.Error("NoData cells are not passable")
	}

	if _, err := NewCostRaster(2, 2, 0, 0, 1, 1, []float64{1}); err == nil {
		t.Error("wrong number of values should be rejected")
	}
	if _, err := NewCostRaster(2, 2, 0, 0, 0, 1, make([]float64, 4)); err == nil {
		t.Error("zero cell size should be rejected")
	}
}

func TestCostRasterNetCDF(t *testing.T) {
	r, err := NewCostRaster(4, 3, -180, -90, 90, 60, []float64{
		1, 2, 3, 4,
		5, 6, -9999, 8,
		9, 10, 11, 12.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	r.NoData = -9999
	if err := r.SetProjection("+proj=longlat +datum=WGS84"); err != nil {
		t.Fatal(err)
	}

	filename := filepath.Join(t.TempDir(), "cost.ncf")
	f, err := os.Create(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Write(f, ""); err != nil {
		t.Fatal(err)
	}
	f.Close()

	have, err := OpenCostRaster(filename, DefaultCostVariable)
	if err != nil {
		t.Fatal(err)
	}
	if have.NX != 4 || have.NY != 3 || have.X0 != -180 || have.Y0 != -90 || have.Dx != 90 || have.Dy != 60 {
		t.Errorf("grid definition differs: %+v", have)
	}
	if have.NoData != -9999 {
		t.Errorf("want NoData -9999 but have %g", have.NoData)
	}
	if have.SR == nil {
		t.Error("projection was not read")
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			if have.Cost(col, row) != r.Cost(col, row) {
				t.Errorf("cell (%d, %d): want %g but have %g", col, row, r.Cost(col, row), have.Cost(col, row))
			}
		}
	}
	if have.Passable(2, 1) {
		t.Error("NoData cell should not be passable")
	}

	var le *LoadError
	if _, err := OpenCostRaster(filename, "friction"); !errors.As(err, &le) {
		t.Errorf("missing variable: want LoadError but have %v", err)
	} else if le.Source != filename {
		t.Errorf("want source %s but have %s", filename, le.Source)
	}
	if _, err := OpenCostRaster(filepath.Join(t.TempDir(), "none.ncf"), ""); !errors.As(err, &le) {
		t.Errorf("missing file: want LoadError but have %v", err)
	}
}

func TestCostRasterMissingAttribute(t *testing.T) {
	h := cdf.NewHeader([]string{"y", "x"}, []int{1, 1})
	h.AddAttribute("", "x0", []float64{0})
	h.AddAttribute("", "y0", []float64{0})
	h.AddAttribute("", "dx", []float64{1})
	h.AddAttribute("", "nx", []int32{1})
	h.AddAttribute("", "ny", []int32{1})
	h.AddVariable("cost", []string{"y", "x"}, []float32{0})
	h.Define()

	filename := filepath.Join(t.TempDir(), "nody.ncf")
	f, err := os.Create(filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cdf.Create(f, h); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var le *LoadError
	if _, err := OpenCostRaster(filename, ""); !errors.As(err, &le) {
		t.Errorf("want LoadError but have %v", err)
	}
}
