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

// Package costpath finds least-cost paths between grid points over a
// cost raster.
//
// Paths move between the centers of 8-connected raster cells. The cost of
// a step is the mean cost of the two cells times the distance between
// their centers, so the cost of a path is the integral of the cost
// surface along it.
package costpath

import (
	"context"
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	locisol "github.com/srpankratyev/GIS-Portfolio"
)

// DefaultMargin searches the whole raster.
const DefaultMargin = -1

// Solver is a locisol.PathSolver for cost rasters.
type Solver struct {
	// Margin is the number of cells the search window extends beyond the
	// bounding box of the start and end cells. Paths cannot leave the
	// window, so a path found inside it can cost more than the least-cost
	// path over the whole raster. Ends that cannot be reached inside the
	// window are searched for again over the whole raster. If Margin is
	// negative the whole raster is searched.
	Margin int

	// KeepPaths specifies whether to return the geometry of each path.
	KeepPaths bool
}

// New returns a Solver with the default margin.
func New() *Solver { return &Solver{Margin: DefaultMargin} }

// neighbors are the column and row offsets of the cells that are
// connected to a cell and come after it in row-major order. Together
// with the reverse directions they make up all 8 neighbors.
var neighbors = [4][2]int{{1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// window is the part of the raster a search is restricted to.
type window struct {
	r            *locisol.CostRaster
	col0, row0   int
	ncols, nrows int
}

func newWindow(r *locisol.CostRaster, c0, r0, c1, r1, margin int) window {
	if margin < 0 {
		return window{r: r, ncols: r.NX, nrows: r.NY}
	}
	c0, r0 = max(c0-margin, 0), max(r0-margin, 0)
	c1, r1 = min(c1+margin, r.NX-1), min(r1+margin, r.NY-1)
	return window{r: r, col0: c0, row0: r0, ncols: c1 - c0 + 1, nrows: r1 - r0 + 1}
}

func (w window) id(col, row int) int64 {
	return int64((row-w.row0)*w.ncols + (col - w.col0))
}

func (w window) cell(id int64) (col, row int) {
	return int(id)%w.ncols + w.col0, int(id)/w.ncols + w.row0
}

// full reports whether the window covers the whole raster.
func (w window) full() bool {
	return w.col0 == 0 && w.row0 == 0 && w.ncols == w.r.NX && w.nrows == w.r.NY
}

func (w window) contains(col, row int) bool {
	return col >= w.col0 && row >= w.row0 && col < w.col0+w.ncols && row < w.row0+w.nrows
}

// graph builds the weighted cell graph of the window.
func (w window) graph(ctx context.Context) (*simple.WeightedUndirectedGraph, error) {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	r := w.r
	diag := math.Hypot(r.Dx, r.Dy)
	for row := w.row0; row < w.row0+w.nrows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := w.col0; col < w.col0+w.ncols; col++ {
			if !r.Passable(col, row) {
				continue
			}
			u := simple.Node(w.id(col, row))
			if g.Node(u.ID()) == nil {
				g.AddNode(u)
			}
			cu := r.Cost(col, row)
			for _, n := range neighbors {
				nc, nr := col+n[0], row+n[1]
				if !w.contains(nc, nr) || !r.Passable(nc, nr) {
					continue
				}
				var dist float64
				switch {
				case n[0] != 0 && n[1] != 0:
					dist = diag
				case n[0] != 0:
					dist = r.Dx
				default:
					dist = r.Dy
				}
				v := simple.Node(w.id(nc, nr))
				g.SetWeightedEdge(g.NewWeightedEdge(u, v, (cu+r.Cost(nc, nr))/2*dist))
			}
		}
	}
	return g, nil
}

type endCell struct {
	id       int
	col, row int
}

// SolveOneToMany implements locisol.PathSolver. It returns an error
// wrapping locisol.ErrNoPath if none of ends can be reached, and a
// different error if start is outside the raster or on an impassable
// cell. Ends outside the raster or on impassable cells are treated as
// unreachable.
func (s *Solver) SolveOneToMany(ctx context.Context, start locisol.GridPoint, ends []locisol.GridPoint, r *locisol.CostRaster) ([]locisol.PathCost, error) {
	if len(ends) == 0 {
		return nil, fmt.Errorf("costpath: no end points for point %d: %w", start.ID, locisol.ErrNoPath)
	}
	sc, sr, ok := r.Cell(start.X, start.Y)
	if !ok {
		return nil, fmt.Errorf("costpath: point %d at (%g, %g) is outside the cost raster", start.ID, start.X, start.Y)
	}
	if !r.Passable(sc, sr) {
		return nil, fmt.Errorf("costpath: point %d is on impassable cell (%d, %d)", start.ID, sc, sr)
	}

	c0, r0, c1, r1 := sc, sr, sc, sr
	cells := make([]endCell, 0, len(ends))
	for _, e := range ends {
		ec, er, ok := r.Cell(e.X, e.Y)
		if !ok || !r.Passable(ec, er) {
			continue
		}
		cells = append(cells, endCell{id: e.ID, col: ec, row: er})
		c0, r0 = min(c0, ec), min(r0, er)
		c1, r1 = max(c1, ec), max(r1, er)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("costpath: no end point of point %d is on a passable cell: %w", start.ID, locisol.ErrNoPath)
	}

	w := newWindow(r, c0, r0, c1, r1, s.Margin)
	out, err := s.search(ctx, w, sc, sr, cells)
	if err != nil {
		return nil, err
	}
	if len(out) < len(cells) && !w.full() {
		w = newWindow(r, c0, r0, c1, r1, -1)
		if out, err = s.search(ctx, w, sc, sr, cells); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("costpath: none of %d end points reachable from point %d: %w", len(cells), start.ID, locisol.ErrNoPath)
	}
	return out, nil
}

// search finds the paths from cell (sc, sr) to cells inside w. Unreachable
// ends are left out.
func (s *Solver) search(ctx context.Context, w window, sc, sr int, cells []endCell) ([]locisol.PathCost, error) {
	r := w.r
	g, err := w.graph(ctx)
	if err != nil {
		return nil, err
	}
	startID := w.id(sc, sr)
	shortest := path.DijkstraFrom(simple.Node(startID), g)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []locisol.PathCost
	for _, e := range cells {
		id := w.id(e.col, e.row)
		pc := locisol.PathCost{EndID: e.id}
		if id == startID {
			if s.KeepPaths {
				pc.Path = geom.LineString{r.Center(sc, sr)}
			}
			out = append(out, pc)
			continue
		}
		cost := shortest.WeightTo(id)
		if math.IsInf(cost, 1) {
			continue
		}
		pc.TotalCost = cost
		if s.KeepPaths {
			nodes, _ := shortest.To(id)
			pc.Path = make(geom.LineString, len(nodes))
			for i, n := range nodes {
				pc.Path[i] = r.Center(w.cell(n.ID()))
			}
		}
		out = append(out, pc)
	}
	return out, nil
}
