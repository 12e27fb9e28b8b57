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


package locisolutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	locisol "github.com/srpankratyev/GIS-Portfolio"
	"github.com/srpankratyev/GIS-Portfolio/costpath"
	"github.com/srpankratyev/GIS-Portfolio/internal/hash"
)

// Run computes the isolation measure using the settings in cfg. Log
// messages are written to the output of cmd and to cfg.LogFile. If
// solver is nil, least-cost paths are found with a costpath.Solver.
//
// If the run is interrupted, the values computed so far are still
// written to the output files.
func Run(cmd *cobra.Command, cfg *RunConfig, solver locisol.PathSolver) error {
	startTime := time.Now()

	var upload uploader

	logfile, err := os.Create(upload.maybeUpload(cfg.LogFile))
	if err != nil {
		return fmt.Errorf("locisol: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log := logrus.New()
	log.SetOutput(io.MultiWriter(cmd.OutOrStdout(), logfile))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	gridFile, err := maybeDownload(ctx, cfg.GridFile, log)
	if err != nil {
		return err
	}
	costFile, err := maybeDownload(ctx, cfg.CostFile, log)
	if err != nil {
		return err
	}

	workers := cfg.Concurrency
	if workers == 0 {
		workers = runtime.GOMAXPROCS(-1)
	}
	throttle, err := locisol.NewThrottle(workers, cfg.RateLimit, cfg.RateBurst)
	if err != nil {
		return err
	}

	keepPaths := cfg.PathsFile != ""
	if solver == nil {
		solver = &costpath.Solver{Margin: cfg.Margin, KeepPaths: keepPaths}
	}
	if cfg.CacheEntries > 0 || cfg.CacheDir != "" {
		// One cache processor per throttle slot, so a caller holding a
		// slot never waits on the cache.
		solver, err = locisol.NewCachedSolver(solver, locisol.CacheConfig{
			MemoryEntries: cfg.CacheEntries,
			Dir:           cfg.CacheDir,
			Tag:           hash.Key(cfg.CostFile, cfg.CostVariable, cfg.Margin, keepPaths),
			Workers:       workers,
		})
		if err != nil {
			return err
		}
	}

	m := locisol.NewMetrics()
	a := &locisol.Aggregator{
		Solver:           solver,
		Throttle:         throttle,
		Workers:          workers,
		TaskTimeout:      cfg.TaskTimeout,
		MaxRetries:       cfg.MaxRetries,
		RetryInterval:    cfg.RetryInterval,
		Metrics:          m,
		ProgressInterval: cfg.ProgressInterval,
	}

	b := locisol.NewBatch(log)
	b.InitFuncs = []locisol.BatchManipulator{
		locisol.LoadCostRasterFile(costFile, cfg.CostVariable),
		locisol.LoadCatalogFile(gridFile, locisol.CatalogColumns{ID: cfg.IDColumn, Region: cfg.RegionColumns}),
		locisol.SetOffsets(cfg.Offsets),
	}
	if len(cfg.Regions) > 0 {
		b.InitFuncs = append(b.InitFuncs, locisol.FilterRegions(cfg.Regions))
	}
	b.RunFuncs = []locisol.BatchManipulator{locisol.Aggregate(a)}

	b.CleanupFuncs = []locisol.BatchManipulator{
		locisol.WriteResultsCSV(upload.maybeUpload(cfg.OutputFile)),
	}
	if cfg.ErrorLogFile != "" {
		b.CleanupFuncs = append(b.CleanupFuncs, locisol.WriteErrorLogCSV(upload.maybeUpload(cfg.ErrorLogFile)))
	}
	if cfg.ShapefileOutput != "" {
		b.CleanupFuncs = append(b.CleanupFuncs, locisol.WriteResultsShapefile(upload.maybeUpload(cfg.ShapefileOutput)))
	}
	if keepPaths {
		paths, err := locisol.NewPathShapefile(upload.maybeUpload(cfg.PathsFile))
		if err != nil {
			return err
		}
		a.Paths = paths
		b.CleanupFuncs = append(b.CleanupFuncs, locisol.ClosePaths(paths))
	}
	var summaryFile string
	if cfg.SummaryFile != "" {
		summaryFile = upload.maybeUpload(cfg.SummaryFile)
	}
	b.CleanupFuncs = append(b.CleanupFuncs, locisol.LogSummary(summaryFile))
	if cfg.MetricsFile != "" {
		b.CleanupFuncs = append(b.CleanupFuncs, locisol.WriteMetrics(m, upload.maybeUpload(cfg.MetricsFile)))
	}
	if upload.err != nil {
		return upload.err
	}

	if err := b.Init(ctx); err != nil {
		return err
	}
	runErr := b.Run(ctx)
	if runErr != nil && b.Results == nil {
		return runErr
	}
	if runErr != nil {
		log.WithError(runErr).Warn("run stopped early; writing partial results")
	}
	// Output is written even if the run was interrupted.
	if err := b.Cleanup(context.Background()); err != nil {
		return err
	}
	if err := upload.uploadOutput(context.Background(), log); err != nil {
		return err
	}
	log.WithField("elapsed", time.Since(startTime).Round(time.Millisecond)).Info("locisol completed")
	return runErr
}
