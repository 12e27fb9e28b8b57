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
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrSlotFilled is returned when a result is written twice for the
	// same point.
	ErrSlotFilled = errors.New("locisol: result slot already filled")

	// ErrFinalized is returned when a result is written after the table
	// has been finalized.
	ErrFinalized = errors.New("locisol: result table is finalized")
)

// IsolationRecord holds the isolation value of one grid point.
type IsolationRecord struct {
	PointID    int
	RegionCode string

	// AvgCost is the mean least-cost path cost to the reachable neighbors
	// of the point. It is NaN when Resolved is false.
	AvgCost  float64
	Resolved bool

	// NumEnds is the number of neighbors the mean was taken over.
	NumEnds int
}

// ResultTable holds one IsolationRecord per catalog point, in catalog
// order, plus a ledger of the points that could not be resolved.
// Each slot may be written once, and different slots may be written
// concurrently.
type ResultTable struct {
	records []IsolationRecord
	filled  []int32

	mu        sync.Mutex
	ledger    []ErrorEntry
	finalized int32
}

// NewResultTable allocates an unresolved record for every point in c.
func NewResultTable(c *Catalog) *ResultTable {
	t := &ResultTable{
		records: make([]IsolationRecord, c.Len()),
		filled:  make([]int32, c.Len()),
	}
	for i := range t.records {
		p := c.At(i)
		t.records[i] = IsolationRecord{
			PointID:    p.ID,
			RegionCode: p.RegionCode,
			AvgCost:    math.NaN(),
		}
	}
	return t
}

// Len returns the number of slots in the table.
func (t *ResultTable) Len() int { return len(t.records) }

func (t *ResultTable) claim(i int) error {
	if atomic.LoadInt32(&t.finalized) != 0 {
		return ErrFinalized
	}
	if i < 0 || i >= len(t.records) {
		return fmt.Errorf("locisol: result slot %d out of range [0, %d)", i, len(t.records))
	}
	if !atomic.CompareAndSwapInt32(&t.filled[i], 0, 1) {
		return fmt.Errorf("%w: point %d", ErrSlotFilled, t.records[i].PointID)
	}
	return nil
}

// Set records the isolation value of the point in slot i.
func (t *ResultTable) Set(i int, avgCost float64, numEnds int) error {
	if err := t.claim(i); err != nil {
		return err
	}
	r := &t.records[i]
	r.AvgCost = avgCost
	r.NumEnds = numEnds
	r.Resolved = true
	return nil
}

// Fail marks the point in slot i as unresolved and adds e to the ledger.
// The point id of e is taken from the slot.
func (t *ResultTable) Fail(i int, e ErrorEntry) error {
	if err := t.claim(i); err != nil {
		return err
	}
	e.PointID = t.records[i].PointID
	t.mu.Lock()
	t.ledger = append(t.ledger, e)
	t.mu.Unlock()
	return nil
}

// failRemaining marks every slot that has not been written as failed
// with e and returns how many were marked.
func (t *ResultTable) failRemaining(e ErrorEntry) int {
	n := 0
	for i := range t.records {
		if atomic.LoadInt32(&t.filled[i]) == 0 && t.Fail(i, e) == nil {
			n++
		}
	}
	return n
}

// Finalize freezes the table. Later writes return ErrFinalized.
func (t *ResultTable) Finalize() {
	atomic.StoreInt32(&t.finalized, 1)
}

// Records returns a copy of the records in catalog order.
func (t *ResultTable) Records() []IsolationRecord {
	return append([]IsolationRecord(nil), t.records...)
}

// Record returns the record in slot i.
func (t *ResultTable) Record(i int) IsolationRecord { return t.records[i] }

// Errors returns a copy of the error ledger, ordered by the catalog
// position of the points.
func (t *ResultTable) Errors() []ErrorEntry {
	t.mu.Lock()
	e := append([]ErrorEntry(nil), t.ledger...)
	t.mu.Unlock()
	pos := make(map[int]int, len(t.records))
	for i, r := range t.records {
		pos[r.PointID] = i
	}
	sort.SliceStable(e, func(i, j int) bool { return pos[e[i].PointID] < pos[e[j].PointID] })
	return e
}

// Counts returns the number of resolved and unresolved points.
func (t *ResultTable) Counts() (resolved, unresolved int) {
	for _, r := range t.records {
		if r.Resolved {
			resolved++
		} else {
			unresolved++
		}
	}
	return
}

// CauseCounts returns the number of ledger entries for each cause.
func (t *ResultTable) CauseCounts() map[ErrorKind]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := make(map[ErrorKind]int)
	for _, e := range t.ledger {
		c[e.Cause]++
	}
	return c
}
