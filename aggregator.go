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
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Aggregator computes the isolation value of every point in a catalog:
// the mean least-cost path cost from the point to those of its offset
// neighbors that can be reached.
type Aggregator struct {
	// Catalog holds all grid points. Neighbors are looked up here.
	Catalog *Catalog

	// Points holds the points to compute values for. If nil, all points
	// in Catalog are used.
	Points *Catalog

	Offsets OffsetSet
	Raster  *CostRaster
	Solver  PathSolver

	// Throttle bounds solver calls. If nil, calls are only bounded by
	// the number of workers.
	Throttle *Throttle

	// Workers is the number of points processed concurrently. If it is
	// less than 1, runtime.GOMAXPROCS(0) is used.
	Workers int

	// TaskTimeout bounds each solver call. Zero means no limit.
	TaskTimeout time.Duration

	// MaxRetries is how many times a solver call that fails with a
	// temporary error is retried. RetryInterval is the initial wait
	// between attempts.
	MaxRetries    int
	RetryInterval time.Duration

	// Paths, if not nil, receives the paths found for each point.
	Paths PathSink

	Metrics *Metrics
	Log     logrus.FieldLogger

	// ProgressInterval is how often progress is logged. Zero disables
	// progress logging.
	ProgressInterval time.Duration

	pathsMu sync.Mutex
}

func (a *Aggregator) log() logrus.FieldLogger {
	if a.Log == nil {
		return logrus.StandardLogger()
	}
	return a.Log
}

// Run computes the isolation value of every point. Failures of
// individual points are recorded in the returned table rather than
// returned. If ctx is cancelled, points that were not started are
// recorded as failed and the table is returned along with ctx.Err().
func (a *Aggregator) Run(ctx context.Context) (*ResultTable, error) {
	if a.Catalog == nil {
		return nil, fmt.Errorf("locisol: aggregator has no catalog")
	}
	if a.Raster == nil {
		return nil, fmt.Errorf("locisol: aggregator has no cost raster")
	}
	if a.Solver == nil {
		return nil, fmt.Errorf("locisol: aggregator has no path solver")
	}
	points := a.Points
	if points == nil {
		points = a.Catalog
	}
	nprocs := a.Workers
	if nprocs < 1 {
		nprocs = runtime.GOMAXPROCS(0)
	}
	throttle := a.Throttle
	if throttle == nil {
		var err error
		if throttle, err = NewThrottle(nprocs, 0, 0); err != nil {
			return nil, err
		}
	}

	t := NewResultTable(points)
	var done int64

	stopProgress := a.logProgress(&done, points.Len())
	defer stopProgress()

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				a.isolate(ctx, t, points, throttle, i)
				atomic.AddInt64(&done, 1)
			}
		}()
	}
feed:
	for i := 0; i < points.Len(); i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	err := ctx.Err()
	if err != nil {
		n := t.failRemaining(ErrorEntry{Cause: SolveFailed, Detail: err.Error()})
		a.log().WithError(err).WithField("skipped", n).Warn("run cancelled")
	}
	t.Finalize()
	return t, err
}

// isolate computes the value of the point at position i of points and
// writes it to slot i of t.
func (a *Aggregator) isolate(ctx context.Context, t *ResultTable, points *Catalog, throttle *Throttle, i int) {
	p := points.At(i)
	ends := a.Catalog.Ends(Resolve(p.ID, a.Offsets))

	fail := func(kind ErrorKind, detail string) {
		if err := t.Fail(i, ErrorEntry{Cause: kind, Detail: detail}); err != nil {
			a.log().WithError(err).WithField("point_id", p.ID).Error("recording failure")
		}
		a.Metrics.RecordPoint(kind.String(), len(ends))
		a.log().WithFields(logrus.Fields{
			"point_id": p.ID,
			"cause":    kind,
		}).Debug(detail)
	}

	if len(ends) == 0 {
		fail(NoNeighbors, "")
		return
	}

	paths, err := a.solve(ctx, throttle, p, ends)
	switch {
	case errors.Is(err, errSolveTimeout):
		fail(SolveFailed, err.Error())
		return
	case errors.Is(err, ErrNoPath):
		fail(AllUnreachable, err.Error())
		return
	case err != nil:
		fail(SolveFailed, err.Error())
		return
	case len(paths) == 0:
		fail(AllUnreachable, "")
		return
	}

	costs := make([]float64, len(paths))
	for j, pc := range paths {
		costs[j] = pc.TotalCost
	}
	avg := floats.Sum(costs) / float64(len(costs))
	if err := t.Set(i, avg, len(paths)); err != nil {
		a.log().WithError(err).WithField("point_id", p.ID).Error("recording result")
	}
	a.Metrics.RecordPoint("resolved", len(ends))

	if a.Paths != nil {
		a.pathsMu.Lock()
		err := a.Paths.WritePaths(p, paths)
		a.pathsMu.Unlock()
		if err != nil {
			a.log().WithError(err).WithField("point_id", p.ID).Error("writing paths")
		}
	}
}

// errSolveTimeout marks solver calls that ran out of time. A timed-out
// call is a failure even if the solver reported no path.
var errSolveTimeout = errors.New("locisol: solver timed out")

// solve calls the solver, retrying temporary failures.
func (a *Aggregator) solve(ctx context.Context, throttle *Throttle, p GridPoint, ends []GridPoint) ([]PathCost, error) {
	if a.MaxRetries <= 0 {
		return a.solveOnce(ctx, throttle, p, ends)
	}
	var paths []PathCost
	var final error
	b := backoff.NewExponentialBackOff()
	if a.RetryInterval > 0 {
		b.InitialInterval = a.RetryInterval
	}
	err := backoff.RetryNotify(
		func() error {
			var err error
			paths, err = a.solveOnce(ctx, throttle, p, ends)
			if err != nil && isTemporary(err) && ctx.Err() == nil {
				return err
			}
			final = err
			return nil
		},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(a.MaxRetries)), ctx),
		func(err error, d time.Duration) {
			a.Metrics.recordRetry()
			a.log().WithError(err).WithField("point_id", p.ID).Infof("retrying in %v", d)
		},
	)
	if err != nil {
		return nil, err
	}
	return paths, final
}

// solveOnce makes a single solver call while holding a throttle slot.
// The slot and the per-task context are released on every return path.
func (a *Aggregator) solveOnce(ctx context.Context, throttle *Throttle, p GridPoint, ends []GridPoint) (paths []PathCost, err error) {
	release, err := throttle.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, a.TaskTimeout)
	}
	defer cancel()

	a.Metrics.solverStarted()
	defer a.Metrics.solverDone()
	start := time.Now()
	defer func() {
		a.Metrics.RecordSolve(time.Since(start))
		if r := recover(); r != nil {
			paths, err = nil, fmt.Errorf("locisol: solver panic: %v", r)
		}
	}()

	paths, err = a.Solver.SolveOneToMany(taskCtx, p, ends, a.Raster)
	if err != nil && ctx.Err() == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %v: %w", errSolveTimeout, a.TaskTimeout, err)
	}
	return paths, err
}

// logProgress periodically logs how many points are done. The returned
// function stops it.
func (a *Aggregator) logProgress(done *int64, total int) func() {
	if a.ProgressInterval <= 0 {
		return func() {}
	}
	tick := time.NewTicker(a.ProgressInterval)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-tick.C:
				n := atomic.LoadInt64(done)
				a.log().WithFields(logrus.Fields{
					"done":  n,
					"total": total,
				}).Infof("%.1f%% of grid points processed", 100*float64(n)/float64(total))
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			tick.Stop()
			close(stop)
		})
	}
}
