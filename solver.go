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
	"context"

	"github.com/ctessum/geom"
)

// PathCost is the least-cost path from a start point to one end point.
type PathCost struct {
	EndID     int
	TotalCost float64

	// Path is the route taken, if the solver was asked to keep it.
	Path geom.LineString
}

// A PathSolver finds least-cost paths over a cost raster.
//
// SolveOneToMany returns one PathCost for each end that can be reached
// from start. Ends that cannot be reached are left out. If ends is empty
// or none of them can be reached, the returned error wraps ErrNoPath.
// Implementations must be safe for concurrent use and should return
// promptly once ctx is done.
type PathSolver interface {
	SolveOneToMany(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error)
}

// SolverFunc adapts a function to the PathSolver interface.
type SolverFunc func(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error)

// SolveOneToMany calls f.
func (f SolverFunc) SolveOneToMany(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error) {
	return f(ctx, start, ends, r)
}

// PathSink receives the paths found for each start point, for example to
// write them to a file. Calls are serialized.
type PathSink interface {
	WritePaths(start GridPoint, paths []PathCost) error
}
