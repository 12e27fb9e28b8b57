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
	"sort"
	"strings"
)

// ErrNoPath is returned by a PathSolver when none of the requested end
// points can be reached from the start point.
var ErrNoPath = errors.New("locisol: no path")

// ErrorKind classifies why the isolation value of a point could not be
// computed.
type ErrorKind int

const (
	// NoNeighbors means none of the candidate neighbor ids exist in the
	// catalog, so the solver was never called.
	NoNeighbors ErrorKind = iota + 1

	// SolveFailed means the solver returned an error other than ErrNoPath,
	// timed out, or panicked.
	SolveFailed

	// AllUnreachable means neighbors exist but none of them can be reached.
	AllUnreachable
)

func (k ErrorKind) String() string {
	switch k {
	case NoNeighbors:
		return "NoNeighbors"
	case SolveFailed:
		return "SolveFailed"
	case AllUnreachable:
		return "AllUnreachable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ErrorEntry records the failure of a single point.
type ErrorEntry struct {
	PointID int
	Cause   ErrorKind

	// Detail holds the underlying error message for SolveFailed entries.
	Detail string
}

func (e ErrorEntry) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("%d: %v", e.PointID, e.Cause)
	}
	return fmt.Sprintf("%d: %v: %s", e.PointID, e.Cause, e.Detail)
}

// LoadError is returned when an input dataset cannot be read. It is fatal
// for the run.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("locisol: loading %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadErrorf(source, format string, args ...interface{}) error {
	return &LoadError{Source: source, Err: fmt.Errorf(format, args...)}
}

// NotFoundError is returned by strict catalog lookups when some of the
// requested ids do not exist.
type NotFoundError struct {
	IDs []int
}

func (e *NotFoundError) Error() string {
	ids := append([]int(nil), e.IDs...)
	sort.Ints(ids)
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("locisol: ids not in catalog: %s", strings.Join(s, ", "))
}

// temporary is implemented by errors that may succeed if retried.
type temporary interface {
	Temporary() bool
}

// isTemporary reports whether any error in err's chain is marked as
// temporary.
func isTemporary(err error) bool {
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}
