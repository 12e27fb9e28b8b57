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
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
)

// GridPoint is one node of the land-surface grid.
type GridPoint struct {
	ID         int
	RegionCode string
	geom.Point
}

// Catalog holds the grid points of a run in load order. It is read-only
// once created and safe for concurrent use.
type Catalog struct {
	points []GridPoint
	index  map[int]int
}

// NewCatalog creates a catalog from the given points, which must have
// unique ids.
func NewCatalog(points []GridPoint) (*Catalog, error) {
	c := &Catalog{
		points: make([]GridPoint, len(points)),
		index:  make(map[int]int, len(points)),
	}
	for i, p := range points {
		if j, ok := c.index[p.ID]; ok {
			return nil, loadErrorf("grid catalog", "duplicate id %d at records %d and %d", p.ID, j, i)
		}
		c.index[p.ID] = i
		c.points[i] = p
	}
	return c, nil
}

// CatalogColumns specifies the attribute columns of a grid point shapefile.
type CatalogColumns struct {
	// ID is the name of the integer id column.
	ID string

	// Region lists acceptable names for the region code column. The first
	// one present in the shapefile is used.
	Region []string
}

// DefaultCatalogColumns are the columns used when none are specified.
var DefaultCatalogColumns = CatalogColumns{
	ID:     "id",
	Region: []string{"region_code", "isocode"},
}

// LoadCatalog reads grid points from the point shapefile at filename.
// If sr is not nil and the shapefile has a projection file, the point
// coordinates are converted to sr.
func LoadCatalog(filename string, cols CatalogColumns, sr *proj.SR) (*Catalog, error) {
	if cols.ID == "" {
		cols.ID = DefaultCatalogColumns.ID
	}
	if len(cols.Region) == 0 {
		cols.Region = DefaultCatalogColumns.Region
	}
	d, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, &LoadError{Source: filename, Err: err}
	}
	defer d.Close()

	present := make(map[string]bool)
	for _, f := range d.Fields() {
		present[strings.ToLower(fieldName(f.Name))] = true
	}
	if !present[strings.ToLower(cols.ID)] {
		return nil, loadErrorf(filename, "missing attribute column %s", cols.ID)
	}
	var regionCol string
	for _, r := range cols.Region {
		if present[strings.ToLower(r)] {
			regionCol = r
			break
		}
	}
	if regionCol == "" {
		return nil, loadErrorf(filename, "missing attribute column %s", strings.Join(cols.Region, " or "))
	}

	var trans proj.Transformer
	if sr != nil {
		shpSR, err := d.SR()
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, &LoadError{Source: filename, Err: err}
		default:
			if trans, err = shpSR.NewTransform(sr); err != nil {
				return nil, &LoadError{Source: filename, Err: err}
			}
		}
	}

	var points []GridPoint
	for {
		g, fields, more := d.DecodeRowFields(cols.ID, regionCol)
		if !more {
			break
		}
		if err := d.Error(); err != nil {
			return nil, &LoadError{Source: filename, Err: err}
		}
		id, err := parseID(fields[cols.ID])
		if err != nil {
			return nil, loadErrorf(filename, "record %d: %v", len(points), err)
		}
		if trans != nil {
			if g, err = g.Transform(trans); err != nil {
				return nil, &LoadError{Source: filename, Err: err}
			}
		}
		p, ok := g.(geom.Point)
		if !ok {
			return nil, loadErrorf(filename, "record %d: geometry is %T, not a point", len(points), g)
		}
		points = append(points, GridPoint{
			ID:         id,
			RegionCode: strings.TrimSpace(strings.Trim(fields[regionCol], "\x00")),
			Point:      p,
		})
	}
	if err := d.Error(); err != nil {
		return nil, &LoadError{Source: filename, Err: err}
	}
	c, err := NewCatalog(points)
	if err != nil {
		err.(*LoadError).Source = filename
		return nil, err
	}
	return c, nil
}

// parseID converts a shapefile attribute into an integer id. Numeric
// columns written as floats are accepted as long as they are integral.
func parseID(s string) (int, error) {
	s = strings.TrimSpace(strings.Trim(s, "\x00"))
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return int(f), nil
}

func fieldName(name [11]byte) string {
	b := name[:]
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	return strings.TrimSpace(string(b))
}

// Len returns the number of points in the catalog.
func (c *Catalog) Len() int { return len(c.points) }

// At returns the point at position i in load order.
func (c *Catalog) At(i int) GridPoint { return c.points[i] }

// Index returns the load-order position of the point with the given id.
func (c *Catalog) Index(id int) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// AllIDs returns the ids of all points in load order.
func (c *Catalog) AllIDs() []int {
	ids := make([]int, len(c.points))
	for i, p := range c.points {
		ids[i] = p.ID
	}
	return ids
}

// Lookup returns the points with the given ids, in the order the ids are
// given. Ids that are not in the catalog are skipped unless strict is
// true, in which case a *NotFoundError is returned.
func (c *Catalog) Lookup(ids []int, strict bool) ([]GridPoint, error) {
	var out []GridPoint
	var missing []int
	for _, id := range ids {
		if i, ok := c.index[id]; ok {
			out = append(out, c.points[i])
		} else if strict {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{IDs: missing}
	}
	return out, nil
}

// Filter returns a catalog holding only the points whose region code is
// one of regions. If regions is empty, c is returned.
func (c *Catalog) Filter(regions []string) *Catalog {
	if len(regions) == 0 {
		return c
	}
	keep := make(map[string]bool, len(regions))
	for _, r := range regions {
		keep[r] = true
	}
	o := &Catalog{index: make(map[int]int)}
	for _, p := range c.points {
		if keep[p.RegionCode] {
			o.index[p.ID] = len(o.points)
			o.points = append(o.points, p)
		}
	}
	return o
}

// Regions returns the distinct region codes in the order they first
// appear.
func (c *Catalog) Regions() []string {
	seen := make(map[string]bool)
	var r []string
	for _, p := range c.points {
		if !seen[p.RegionCode] {
			seen[p.RegionCode] = true
			r = append(r, p.RegionCode)
		}
	}
	return r
}
