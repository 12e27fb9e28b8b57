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

import "fmt"

// OffsetSet is an ordered set of id deltas that, added to the id of a
// grid point, give the ids of its neighbors. It relies on ids being
// assigned row-major on a regular grid, so that small offsets address
// nearby cells.
type OffsetSet []int

// NewOffsetSet validates deltas and removes duplicates, keeping the
// first occurrence of each.
func NewOffsetSet(deltas []int) (OffsetSet, error) {
	seen := make(map[int]bool, len(deltas))
	o := make(OffsetSet, 0, len(deltas))
	for _, d := range deltas {
		if d == 0 {
			return nil, fmt.Errorf("locisol: neighbor offset of 0 would make a point its own neighbor")
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		o = append(o, d)
	}
	return o, nil
}

// RingOffsets returns the offsets of all cells within radius rows and
// columns of a cell on a row-major grid with rowLen columns. The cell
// itself is excluded. Offsets are ordered by row, then by column.
func RingOffsets(radius, rowLen int) (OffsetSet, error) {
	if radius < 1 {
		return nil, fmt.Errorf("locisol: ring radius must be at least 1, have %d", radius)
	}
	if rowLen <= 2*radius {
		return nil, fmt.Errorf("locisol: row length %d is too short for ring radius %d", rowLen, radius)
	}
	var o OffsetSet
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			o = append(o, dy*rowLen+dx)
		}
	}
	return o, nil
}

// NeighborQuery holds the candidate neighbor ids of a point. Candidates
// are not guaranteed to exist in the catalog.
type NeighborQuery struct {
	PointID      int
	CandidateIDs []int
}

// Resolve derives the candidate neighbor ids of pointID.
func Resolve(pointID int, offsets OffsetSet) NeighborQuery {
	q := NeighborQuery{
		PointID:      pointID,
		CandidateIDs: make([]int, len(offsets)),
	}
	for i, o := range offsets {
		q.CandidateIDs[i] = pointID + o
	}
	return q
}

// Ends returns the points of q that exist in the catalog.
func (c *Catalog) Ends(q NeighborQuery) []GridPoint {
	ends, _ := c.Lookup(q.CandidateIDs, false)
	return ends
}
