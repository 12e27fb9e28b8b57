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
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSolver returns fixed costs for (start, end) pairs. Pairs without a
// cost are unreachable.
type fakeSolver struct {
	costs map[[2]int]float64
	fail  map[int]error
	calls int64
}

func (s *fakeSolver) SolveOneToMany(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error) {
	atomic.AddInt64(&s.calls, 1)
	if err := s.fail[start.ID]; err != nil {
		return nil, err
	}
	var out []PathCost
	for _, e := range ends {
		if c, ok := s.costs[[2]int{start.ID, e.ID}]; ok {
			out = append(out, PathCost{EndID: e.ID, TotalCost: c})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPath
	}
	return out, nil
}

func testCatalog(t testing.TB, ids ...int) *Catalog {
	points := make([]GridPoint, len(ids))
	for i, id := range ids {
		points[i] = GridPoint{ID: id, RegionCode: "AAA", Point: geom.Point{X: float64(id), Y: 0}}
	}
	c, err := NewCatalog(points)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testRaster(t testing.TB) *CostRaster {
	r, err := NewCostRaster(1, 1, 0, 0, 1, 1, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func scenarioSolver() *fakeSolver {
	return &fakeSolver{
		costs: map[[2]int]float64{
			{1, 2}: 3,
			{2, 1}: 4, {2, 3}: 6,
			{3, 2}: 2, {3, 4}: 4,
		},
		fail: map[int]error{4: ErrNoPath},
	}
}

func scenario(t testing.TB, s PathSolver, workers int) *Aggregator {
	return &Aggregator{
		Catalog: testCatalog(t, 1, 2, 3, 4),
		Offsets: OffsetSet{-1, 1},
		Raster:  testRaster(t),
		Solver:  s,
		Workers: workers,
		Log:     quietLog(),
	}
}

// plain replaces NaN values so records can be compared.
func plain(records []IsolationRecord) []IsolationRecord {
	o := make([]IsolationRecord, len(records))
	for i, r := range records {
		if math.IsNaN(r.AvgCost) {
			r.AvgCost = -1
		}
		o[i] = r
	}
	return o
}

func TestAggregatorScenario(t *testing.T) {
	a := scenario(t, scenarioSolver(), 2)
	a.Metrics = NewMetrics()
	table, err := a.Run(context.Background())
	require.NoError(t, err)

	want := []IsolationRecord{
		{PointID: 1, RegionCode: "AAA", AvgCost: 3, Resolved: true, NumEnds: 1},
		{PointID: 2, RegionCode: "AAA", AvgCost: 5, Resolved: true, NumEnds: 2},
		{PointID: 3, RegionCode: "AAA", AvgCost: 3, Resolved: true, NumEnds: 2},
		{PointID: 4, RegionCode: "AAA", AvgCost: -1},
	}
	if diff := pretty.Diff(want, plain(table.Records())); len(diff) > 0 {
		t.Errorf("records differ:\n%s", strings.Join(diff, "\n"))
	}

	errs := table.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, 4, errs[0].PointID)
	assert.Equal(t, AllUnreachable, errs[0].Cause)

	resolved, unresolved := table.Counts()
	assert.Equal(t, 3, resolved)
	assert.Equal(t, 1, unresolved)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.Metrics.PointsTotal.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.PointsTotal.WithLabelValues("AllUnreachable")))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.Metrics.SolverInFlight))
}

func TestAggregatorSinglePoint(t *testing.T) {
	s := scenarioSolver()
	a := &Aggregator{
		Catalog: testCatalog(t, 7),
		Offsets: OffsetSet{-1, 1},
		Raster:  testRaster(t),
		Solver:  s,
		Log:     quietLog(),
	}
	table, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.False(t, table.Record(0).Resolved)
	assert.True(t, math.IsNaN(table.Record(0).AvgCost))
	assert.Equal(t, []ErrorEntry{{PointID: 7, Cause: NoNeighbors}}, table.Errors())
	assert.Equal(t, int64(0), atomic.LoadInt64(&s.calls), "solver should not be called")
}

func TestAggregatorEmptyResult(t *testing.T) {
	a := scenario(t, SolverFunc(func(context.Context, GridPoint, []GridPoint, *CostRaster) ([]PathCost, error) {
		return nil, nil
	}), 1)
	table, err := a.Run(context.Background())
	require.NoError(t, err)
	for _, e := range table.Errors() {
		assert.Equal(t, AllUnreachable, e.Cause)
	}
	assert.Len(t, table.Errors(), 4)
}

func TestAggregatorWorkersIdempotent(t *testing.T) {
	var runs [][]IsolationRecord
	for _, workers := range []int{1, 3, 8, 1} {
		table, err := scenario(t, scenarioSolver(), workers).Run(context.Background())
		require.NoError(t, err)
		runs = append(runs, plain(table.Records()))
	}
	for i := 1; i < len(runs); i++ {
		if diff := pretty.Diff(runs[0], runs[i]); len(diff) > 0 {
			t.Errorf("run %d differs:\n%s", i, strings.Join(diff, "\n"))
		}
	}
}

func TestAggregatorPartialFailure(t *testing.T) {
	base, err := scenario(t, scenarioSolver(), 2).Run(context.Background())
	require.NoError(t, err)

	s := scenarioSolver()
	s.fail[2] = errors.New("raster read failed")
	table, err := scenario(t, s, 2).Run(context.Background())
	require.NoError(t, err)

	for i := 0; i < table.Len(); i++ {
		r := table.Record(i)
		if r.PointID == 2 {
			assert.False(t, r.Resolved)
			continue
		}
		assert.Equal(t, plain([]IsolationRecord{base.Record(i)}), plain([]IsolationRecord{r}))
	}
	errs := table.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, ErrorEntry{PointID: 2, Cause: SolveFailed, Detail: "raster read failed"}, errs[0])
	assert.Equal(t, 4, errs[1].PointID)
}

func TestAggregatorTimeout(t *testing.T) {
	inner := scenarioSolver()
	s := SolverFunc(func(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error) {
		if start.ID == 3 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return inner.SolveOneToMany(ctx, start, ends, r)
	})
	a := scenario(t, s, 4)
	a.TaskTimeout = 20 * time.Millisecond
	table, err := a.Run(context.Background())
	require.NoError(t, err)

	errs := table.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, 3, errs[0].PointID)
	assert.Equal(t, SolveFailed, errs[0].Cause)
	assert.Contains(t, errs[0].Detail, "timed out")
	assert.True(t, table.Record(1).Resolved)
}

func TestAggregatorTimeoutNoPath(t *testing.T) {
	// The solver gives up when its context expires and reports that
	// nothing was reached.
	s := SolverFunc(func(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("search stopped: %v: %w", ctx.Err(), ErrNoPath)
	})
	a := scenario(t, s, 2)
	a.TaskTimeout = 10 * time.Millisecond
	table, err := a.Run(context.Background())
	require.NoError(t, err)

	errs := table.Errors()
	require.Len(t, errs, 4)
	for _, e := range errs {
		assert.Equal(t, SolveFailed, e.Cause, "point %d", e.PointID)
		assert.Contains(t, e.Detail, "timed out")
	}
}

type tempErr struct{}

func (tempErr) Error() string   { return "busy" }
func (tempErr) Temporary() bool { return true }

func TestAggregatorRetry(t *testing.T) {
	inner := scenarioSolver()
	var attempts int64
	s := SolverFunc(func(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error) {
		if start.ID == 2 && atomic.AddInt64(&attempts, 1) <= 2 {
			return nil, tempErr{}
		}
		return inner.SolveOneToMany(ctx, start, ends, r)
	})
	a := scenario(t, s, 2)
	a.MaxRetries = 3
	a.RetryInterval = time.Millisecond
	a.Metrics = NewMetrics()
	table, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, table.Record(1).Resolved)
	assert.Equal(t, 5.0, table.Record(1).AvgCost)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Metrics.RetriesTotal))

	// Retries run out.
	atomic.StoreInt64(&attempts, -10)
	a.MaxRetries = 1
	table, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, table.Record(1).Resolved)
	assert.Equal(t, SolveFailed, table.Errors()[0].Cause)
}

func TestAggregatorPanic(t *testing.T) {
	inner := scenarioSolver()
	s := SolverFunc(func(ctx context.Context, start GridPoint, ends []GridPoint, r *CostRaster) ([]PathCost, error) {
		if start.ID == 1 {
			panic("index out of range")
		}
		return inner.SolveOneToMany(ctx, start, ends, r)
	})
	table, err := scenario(t, s, 2).Run(context.Background())
	require.NoError(t, err)
	errs := table.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, SolveFailed, errs[0].Cause)
	assert.Contains(t, errs[0].Detail, "index out of range")
}

func TestAggregatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	table, err := scenario(t, scenarioSolver(), 2).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, table)
	assert.Equal(t, 4, table.Len())
	_, unresolved := table.Counts()
	assert.Equal(t, 4, unresolved)
	assert.Len(t, table.Errors(), 4)
}

func TestAggregatorMissingInputs(t *testing.T) {
	a := scenario(t, scenarioSolver(), 1)
	a.Raster = nil
	_, err := a.Run(context.Background())
	assert.Error(t, err)
}

type pathRecorder struct {
	mu    sync.Mutex
	count map[int]int
}

func (p *pathRecorder) WritePaths(start GridPoint, paths []PathCost) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count[start.ID] += len(paths)
	return nil
}

func TestAggregatorPaths(t *testing.T) {
	rec := &pathRecorder{count: make(map[int]int)}
	a := scenario(t, scenarioSolver(), 3)
	a.Paths = rec
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 1, 2: 2, 3: 2}, rec.count)
}

func TestAggregatorPoints(t *testing.T) {
	a := scenario(t, scenarioSolver(), 2)
	a.Points = testCatalog(t, 2)
	table, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, 5.0, table.Record(0).AvgCost)
}
