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
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	q := Resolve(2, OffsetSet{-1, 1})
	want := NeighborQuery{PointID: 2, CandidateIDs: []int{1, 3}}
	if !reflect.DeepEqual(q, want) {
		t.Errorf("want %+v but have %+v", want, q)
	}

	// Candidates are not checked against any catalog.
	q = Resolve(0, OffsetSet{-361, -360, 359})
	if !reflect.DeepEqual(q.CandidateIDs, []int{-361, -360, 359}) {
		t.Errorf("have %v", q.CandidateIDs)
	}
}

func TestEnds(t *testing.T) {
	c := testCatalog(t, 1, 2, 3, 4)
	for id, want := range map[int][]int{
		1: {2},
		2: {1, 3},
		4: {3},
	} {
		ends := c.Ends(Resolve(id, OffsetSet{-1, 1}))
		var have []int
		for _, e := range ends {
			have = append(have, e.ID)
		}
		if !reflect.DeepEqual(have, want) {
			t.Errorf("point %d: want %v but have %v", id, want, have)
		}
	}
	if ends := testCatalog(t, 9).Ends(Resolve(9, OffsetSet{-1, 1})); len(ends) != 0 {
		t.Errorf("single point should have no neighbors: %v", ends)
	}
}

func TestNewOffsetSet(t *testing.T) {
	o, err := NewOffsetSet([]int{1, -1, 360, 1, -360, -1})
	if err != nil {
		t.Fatal(err)
	}
	if want := (OffsetSet{1, -1, 360, -360}); !reflect.DeepEqual(o, want) {
		t.Errorf("want %v but have %v", want, o)
	}
	if _, err := NewOffsetSet([]int{1, 0}); err == nil {
		t.Error("a zero offset should be rejected")
	}
}

func TestRingOffsets(t *testing.T) {
	o, err := RingOffsets(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if want := (OffsetSet{-11, -10, -9, -1, 1, 9, 10, 11}); !reflect.DeepEqual(o, want) {
		t.Errorf("want %v but have %v", want, o)
	}

	o, err = RingOffsets(2, 360)
	if err != nil {
		t.Fatal(err)
	}
	if len(o) != 24 {
		t.Errorf("want 24 offsets but have %d", len(o))
	}
	if o[0] != -722 || o[len(o)-1] != 722 {
		t.Errorf("have first %d and last %d", o[0], o[len(o)-1])
	}

	if _, err := RingOffsets(0, 10); err == nil {
		t.Error("radius 0 should be rejected")
	}
	if _, err := RingOffsets(3, 6); err == nil {
		t.Error("rows narrower than the ring should be rejected")
	}
}
