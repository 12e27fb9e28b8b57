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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

// ValueColumn is the name of the isolation value column in outputs.
const ValueColumn = "avlcpcost"

func formatCost(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes one row per point with the columns id, region_code,
// and avlcpcost. The value of unresolved points is left empty.
func (t *ResultTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "region_code", ValueColumn}); err != nil {
		return err
	}
	for _, r := range t.records {
		v := ""
		if r.Resolved {
			v = formatCost(r.AvgCost)
		}
		if err := cw.Write([]string{strconv.Itoa(r.PointID), r.RegionCode, v}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteErrorLog writes the error ledger with the columns id, cause, and
// detail.
func (t *ResultTable) WriteErrorLog(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "cause", "detail"}); err != nil {
		return err
	}
	for _, e := range t.Errors() {
		if err := cw.Write([]string{strconv.Itoa(e.PointID), e.Cause.String(), e.Detail}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteShapefile writes the records as points to a shapefile, taking
// the locations from c. The attribute columns are id, region, avlcpcost,
// and n_ends. Unresolved points get a value of -1.
func (t *ResultTable) WriteShapefile(filename string, c *Catalog) error {
	e, err := shp.NewEncoderFromFields(filename, goshp.POINT,
		goshp.NumberField("id", 10),
		goshp.StringField("region", 10),
		goshp.FloatField(ValueColumn, 20, 8),
		goshp.NumberField("n_ends", 6),
	)
	if err != nil {
		return fmt.Errorf("locisol: creating output shapefile: %w", err)
	}
	defer e.Close()
	for _, r := range t.records {
		i, ok := c.Index(r.PointID)
		if !ok {
			return fmt.Errorf("locisol: writing output shapefile: point %d not in catalog", r.PointID)
		}
		v := -1.0
		if r.Resolved {
			v = r.AvgCost
		}
		if err := e.EncodeFields(c.At(i).Point, r.PointID, r.RegionCode, v, r.NumEnds); err != nil {
			return fmt.Errorf("locisol: writing output shapefile: %w", err)
		}
	}
	return nil
}

// PathShapefile is a PathSink that writes each path as a line to a
// shapefile.
type PathShapefile struct {
	e *shp.Encoder
}

// NewPathShapefile creates a shapefile for paths at filename.
func NewPathShapefile(filename string) (*PathShapefile, error) {
	e, err := shp.NewEncoderFromFields(filename, goshp.POLYLINE,
		goshp.NumberField("start_id", 10),
		goshp.NumberField("end_id", 10),
		goshp.FloatField("cost", 20, 8),
	)
	if err != nil {
		return nil, fmt.Errorf("locisol: creating path shapefile: %w", err)
	}
	return &PathShapefile{e: e}, nil
}

// WritePaths implements PathSink. Paths without geometry are skipped.
func (s *PathShapefile) WritePaths(start GridPoint, paths []PathCost) error {
	for _, p := range paths {
		if len(p.Path) == 0 {
			continue
		}
		line := p.Path
		if len(line) == 1 {
			line = geom.LineString{line[0], line[0]}
		}
		if err := s.e.EncodeFields(geom.MultiLineString{line}, start.ID, p.EndID, p.TotalCost); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the shapefile.
func (s *PathShapefile) Close() { s.e.Close() }

// Summary describes the outcome of a run.
type Summary struct {
	RunID      string         `yaml:"run_id"`
	Points     int            `yaml:"points"`
	Resolved   int            `yaml:"resolved"`
	Unresolved int            `yaml:"unresolved"`
	Causes     map[string]int `yaml:"causes,omitempty"`
	MinCost    float64        `yaml:"min_cost,omitempty"`
	MeanCost   float64        `yaml:"mean_cost,omitempty"`
	MaxCost    float64        `yaml:"max_cost,omitempty"`
	Elapsed    string         `yaml:"elapsed,omitempty"`
}

// Summarize returns counts and value statistics for t.
func (t *ResultTable) Summarize(runID string) Summary {
	s := Summary{RunID: runID, Points: t.Len()}
	s.Resolved, s.Unresolved = t.Counts()
	if cc := t.CauseCounts(); len(cc) > 0 {
		s.Causes = make(map[string]int, len(cc))
		for k, v := range cc {
			s.Causes[k.String()] = v
		}
	}
	var vals []float64
	for _, r := range t.records {
		if r.Resolved {
			vals = append(vals, r.AvgCost)
		}
	}
	if len(vals) > 0 {
		s.MinCost = floats.Min(vals)
		s.MaxCost = floats.Max(vals)
		s.MeanCost = floats.Sum(vals) / float64(len(vals))
	}
	return s
}

// WriteYAML writes s to filename.
func (s Summary) WriteYAML(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("locisol: writing summary: %w", err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		f.Close()
		return fmt.Errorf("locisol: writing summary: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
