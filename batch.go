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

// Package locisol computes a local isolation measure: for every point of
// a regular land-surface grid, the mean least-cost path cost over a cost
// surface from the point to a fixed set of neighboring grid points.
package locisol

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Batch holds the state of one isolation run. A run is carried out by the
// functions in InitFuncs, RunFuncs, and CleanupFuncs, in that order.
type Batch struct {
	RunID string

	Catalog *Catalog
	// Points is the subset of Catalog that values are computed for.
	// If nil, all of Catalog is used.
	Points  *Catalog
	Raster  *CostRaster
	Offsets OffsetSet
	Results *ResultTable

	InitFuncs    []BatchManipulator
	RunFuncs     []BatchManipulator
	CleanupFuncs []BatchManipulator

	Log logrus.FieldLogger

	started time.Time
}

// BatchManipulator is a step of a Batch.
type BatchManipulator func(ctx context.Context, b *Batch) error

// NewBatch returns a batch with a new run id.
func NewBatch(log logrus.FieldLogger) *Batch {
	if log == nil {
		log = logrus.StandardLogger()
	}
	id := uuid.New().String()
	return &Batch{
		RunID: id,
		Log:   log.WithField("run_id", id),
	}
}

func (b *Batch) points() *Catalog {
	if b.Points != nil {
		return b.Points
	}
	return b.Catalog
}

func (b *Batch) do(ctx context.Context, stage string, funcs []BatchManipulator) error {
	for _, f := range funcs {
		if err := f(ctx, b); err != nil {
			return fmt.Errorf("locisol: %s: %w", stage, err)
		}
	}
	return nil
}

// Init runs InitFuncs.
func (b *Batch) Init(ctx context.Context) error {
	b.started = time.Now()
	return b.do(ctx, "initializing", b.InitFuncs)
}

// Run runs RunFuncs.
func (b *Batch) Run(ctx context.Context) error {
	return b.do(ctx, "running", b.RunFuncs)
}

// Cleanup runs CleanupFuncs.
func (b *Batch) Cleanup(ctx context.Context) error {
	return b.do(ctx, "cleaning up", b.CleanupFuncs)
}

// Elapsed returns the time since Init was called.
func (b *Batch) Elapsed() time.Duration { return time.Since(b.started) }

// LoadCostRasterFile loads the cost raster.
func LoadCostRasterFile(filename, variable string) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		b.Log.WithField("file", filename).Info("loading cost raster")
		r, err := OpenCostRaster(filename, variable)
		if err != nil {
			return err
		}
		b.Raster = r
		b.Log.WithFields(logrus.Fields{"nx": r.NX, "ny": r.NY}).Info("cost raster loaded")
		return nil
	}
}

// LoadCatalogFile loads the grid points. If the cost raster has already
// been loaded and has a spatial reference, points are converted to it.
func LoadCatalogFile(filename string, cols CatalogColumns) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		b.Log.WithField("file", filename).Info("loading grid points")
		var c *Catalog
		var err error
		if b.Raster != nil {
			c, err = LoadCatalog(filename, cols, b.Raster.SR)
		} else {
			c, err = LoadCatalog(filename, cols, nil)
		}
		if err != nil {
			return err
		}
		b.Catalog = c
		b.Log.WithField("points", c.Len()).Info("grid points loaded")
		return nil
	}
}

// SetOffsets sets the neighbor offsets.
func SetOffsets(o OffsetSet) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		if len(o) == 0 {
			return fmt.Errorf("no neighbor offsets")
		}
		b.Offsets = o
		return nil
	}
}

// FilterRegions restricts the points values are computed for to the
// given region codes. Neighbors are still taken from all points.
func FilterRegions(regions []string) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		if len(regions) == 0 {
			return nil
		}
		if b.Catalog == nil {
			return fmt.Errorf("filtering regions: no grid points loaded")
		}
		b.Points = b.Catalog.Filter(regions)
		b.Log.WithFields(logrus.Fields{
			"regions": regions,
			"points":  b.Points.Len(),
		}).Info("filtered grid points by region")
		return nil
	}
}

// Aggregate computes isolation values using the settings in a. The
// catalog, points, raster, and offsets of the batch are copied into a.
// If the run is cancelled the partial results are kept so they can
// still be written.
func Aggregate(a *Aggregator) BatchManipulator {
	return func(ctx context.Context, b *Batch) error {
		a.Catalog = b.Catalog
		a.Points = b.points()
		a.Raster = b.Raster
		a.Offsets = b.Offsets
		if a.Log == nil {
			a.Log = b.Log
		}
		b.Log.WithFields(logrus.Fields{
			"points":  a.Points.Len(),
			"offsets": len(a.Offsets),
		}).Info("computing isolation")
		t, err := a.Run(ctx)
		if t != nil {
			b.Results = t
		}
		return err
	}
}

func (b *Batch) results() (*ResultTable, error) {
	if b.Results == nil {
		return nil, fmt.Errorf("no results have been computed")
	}
	return b.Results, nil
}

func writeFile(filename string, write func(f *os.File) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteResultsCSV writes the isolation table.
func WriteResultsCSV(filename string) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		t, err := b.results()
		if err != nil {
			return err
		}
		b.Log.WithField("file", filename).Info("writing results")
		return writeFile(filename, func(f *os.File) error { return t.WriteCSV(f) })
	}
}

// WriteErrorLogCSV writes the error ledger.
func WriteErrorLogCSV(filename string) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		t, err := b.results()
		if err != nil {
			return err
		}
		b.Log.WithField("file", filename).Info("writing error log")
		return writeFile(filename, func(f *os.File) error { return t.WriteErrorLog(f) })
	}
}

// WriteResultsShapefile writes the isolation values as a point shapefile.
func WriteResultsShapefile(filename string) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		t, err := b.results()
		if err != nil {
			return err
		}
		b.Log.WithField("file", filename).Info("writing result shapefile")
		return t.WriteShapefile(filename, b.points())
	}
}

// LogSummary logs the number of resolved and unresolved points. If
// filename is not empty the summary is also written there as YAML.
func LogSummary(filename string) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		t, err := b.results()
		if err != nil {
			return err
		}
		s := t.Summarize(b.RunID)
		s.Elapsed = b.Elapsed().Round(time.Millisecond).String()
		fields := logrus.Fields{
			"resolved":   s.Resolved,
			"unresolved": s.Unresolved,
		}
		for k, v := range s.Causes {
			fields[k] = v
		}
		b.Log.WithFields(fields).Info("isolation computed")
		if filename == "" {
			return nil
		}
		return s.WriteYAML(filename)
	}
}

// WriteMetrics writes the metrics in m in the Prometheus text format.
func WriteMetrics(m *Metrics, filename string) BatchManipulator {
	return func(_ context.Context, b *Batch) error {
		b.Log.WithField("file", filename).Info("writing metrics")
		return m.WriteFile(filename)
	}
}

// ClosePaths closes a path shapefile at the end of a run.
func ClosePaths(p *PathShapefile) BatchManipulator {
	return func(context.Context, *Batch) error {
		p.Close()
		return nil
	}
}
