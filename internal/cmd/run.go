/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/antmuse/AntEngine-sub001/config"
	"github.com/antmuse/AntEngine-sub001/internal/corelog"
	"github.com/antmuse/AntEngine-sub001/metrics"
	"github.com/antmuse/AntEngine-sub001/slab"
	"github.com/antmuse/AntEngine-sub001/supervisor"
)

var metricsAddrFlag string

// regionPathEnv / regionSizeEnv let a worker process (which never parses config itself —
// see worker.go) find and attach the same shared-memory region the supervisor opened.
const (
	regionPathEnv = "ANTENGINE_REGION_PATH"
	regionSizeEnv = "ANTENGINE_REGION_SIZE"
)

func newRunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Start the supervisor and its worker processes",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}
	c.Flags().StringVar(&metricsAddrFlag, "metrics-addr", "", "address to serve /metrics on (disabled when empty)")
	return c
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := corelog.New(cmd.ErrOrStderr(), corelog.InfoLevel)

	loader, err := config.NewLoader(configPathFlag, logger)
	if err != nil {
		return fmt.Errorf("antengine: load config: %w", err)
	}
	config.ApplyLogLevel(loader, logger)
	loader.Watch()
	cfg := loader.Current()
	logger.SetLevel(cfg.LogLevel())

	regionPath := cfg.SharedMemoryPath
	if regionPath == "" {
		regionPath = filepathJoinTemp("antengine.region")
	}
	region, _, err := slab.OpenRegion(regionPath, cfg.SharedMemorySize)
	if err != nil {
		return fmt.Errorf("antengine: open shared region: %w", err)
	}
	defer region.Close()

	// Workers inherit the supervisor's environment (supervisor.spawnOne appends to
	// os.Environ()), so exporting the region's location here is how a freshly exec'd
	// worker learns which shared-memory file to attach (slab.OpenRegion).
	_ = os.Setenv(regionPathEnv, regionPath)
	_ = os.Setenv(regionSizeEnv, strconv.Itoa(cfg.SharedMemorySize))

	reg := metrics.New()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("antengine: os.Executable: %w", err)
	}

	sv, err := supervisor.New(supervisor.Options{
		Count:      cfg.ProcessCount,
		BinaryPath: exe,
		Logger:     logger,
		Counters:   reg,
	})
	if err != nil {
		return fmt.Errorf("antengine: supervisor.New: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := sv.Start(ctx); err != nil {
		return fmt.Errorf("antengine: supervisor.Start: %w", err)
	}
	logger.Info("supervisor started", corelog.F("workers", cfg.ProcessCount))

	stopMetrics := serveMetrics(reg, logger)
	defer stopMetrics()

	sampleStop := sampleEngineData(region, reg, sv, 2*time.Second)
	defer sampleStop()

	waitForSignal(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := sv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("antengine: supervisor.Shutdown: %w", err)
	}
	logger.Info("supervisor stopped")
	return nil
}

// waitForSignal blocks until SIGINT/SIGTERM, the same first-signal-graceful convention
// used elsewhere in the example corpus for long-running server commands.
func waitForSignal(logger corelog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var count int32
	for range sigCh {
		if atomic.AddInt32(&count, 1) == 1 {
			logger.Info("signal received, shutting down")
			return
		}
	}
}

// serveMetrics starts an HTTP /metrics endpoint when metricsAddrFlag is set; the returned
// func shuts it down.
func serveMetrics(reg *metrics.Registry, logger corelog.Logger) func() {
	if metricsAddrFlag == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddrFlag, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", corelog.F("error", err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// sampleEngineData periodically reconciles the shared region's counters and the
// supervisor's live worker count into the Prometheus registry.
func sampleEngineData(region *slab.Region, reg *metrics.Registry, sv *supervisor.Supervisor, every time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				reg.SampleEngineData(region.Header())
				reg.SetWorkersAlive(sv.Alive())
			}
		}
	}()
	return func() { close(stop) }
}

func filepathJoinTemp(name string) string {
	return os.TempDir() + string(os.PathSeparator) + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + name
}
