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

// Package hash creates stable keys for cached results.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

// Key returns a hex key derived from parts. Equal parts always give the
// same key, across processes, so keys can name files on disk.
func Key(parts ...interface{}) string {
	h := fnv.New128a()
	e := gob.NewEncoder(h)
	ok := true
	for _, p := range parts {
		if err := encode(e, p); err != nil {
			ok = false
			break
		}
	}
	if !ok {
		// gob cannot encode some values, such as nil pointers.
		h.Reset()
		printer := spew.ConfigState{
			Indent:                  " ",
			SortKeys:                true,
			DisableMethods:          true,
			SpewKeys:                true,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
		}
		for _, p := range parts {
			printer.Fprintf(h, "%#v\n", p)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// encode is gob.Encoder.Encode with panics, such as the one for nil
// pointers, returned as errors.
func encode(e *gob.Encoder, v interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hash: %v", r)
		}
	}()
	return e.Encode(v)
}
