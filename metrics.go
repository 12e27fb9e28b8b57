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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated during a run.
type Metrics struct {
	registry *prometheus.Registry

	PointsTotal    *prometheus.CounterVec
	SolveDuration  prometheus.Histogram
	SolverInFlight prometheus.Gauge
	RetriesTotal   prometheus.Counter
	EndsPerPoint   prometheus.Histogram
}

// NewMetrics creates a set of collectors registered with a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.PointsTotal = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "locisol_points_total",
			Help: "Grid points processed, by outcome",
		},
		[]string{"outcome"}, // resolved, NoNeighbors, SolveFailed, AllUnreachable
	)
	m.SolveDuration = promauto.With(m.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "locisol_solve_duration_seconds",
			Help:    "Duration of least-cost path solver calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
		},
	)
	m.SolverInFlight = promauto.With(m.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "locisol_solver_in_flight",
			Help: "Solver calls currently running",
		},
	)
	m.RetriesTotal = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "locisol_solver_retries_total",
			Help: "Solver calls retried after a temporary failure",
		},
	)
	m.EndsPerPoint = promauto.With(m.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "locisol_ends_per_point",
			Help:    "Neighbors found in the catalog for each grid point",
			Buckets: prometheus.LinearBuckets(0, 4, 7),
		},
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordPoint records the outcome of one grid point.
func (m *Metrics) RecordPoint(outcome string, numEnds int) {
	if m == nil {
		return
	}
	m.PointsTotal.WithLabelValues(outcome).Inc()
	m.EndsPerPoint.Observe(float64(numEnds))
}

// RecordSolve records the duration of one solver call.
func (m *Metrics) RecordSolve(d time.Duration) {
	if m == nil {
		return
	}
	m.SolveDuration.Observe(d.Seconds())
}

func (m *Metrics) solverStarted() {
	if m != nil {
		m.SolverInFlight.Inc()
	}
}

func (m *Metrics) solverDone() {
	if m != nil {
		m.SolverInFlight.Dec()
	}
}

func (m *Metrics) recordRetry() {
	if m != nil {
		m.RetriesTotal.Inc()
	}
}

// WriteFile writes the current metric values to filename in the
// Prometheus text format.
func (m *Metrics) WriteFile(filename string) error {
	return prometheus.WriteToTextfile(filename, m.registry)
}
