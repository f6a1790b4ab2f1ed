// Soak test runner for long-duration stabilization.
//
// This tool films a synthetic shaky camera in real time, stabilizes it
// with the grid tracker and monitors the pipeline for memory leaks, output
// stalls, invalid corrections and frames that miss their time budget over
// extended periods (hours or more).
//
// Usage:
//
//	go run ./cmd/soak -duration 8h
//	go run ./cmd/soak -duration 10m -fps 60 -config vstab.json
//
// Exposes pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"math"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/thesyncim/vstab/pkg/vstab"
	"github.com/thesyncim/vstab/pkg/vstab/testutil"
)

const (
	statusInterval = 5 * time.Minute
	heapLimitMB    = 200
	shakeAmplitude = 4 // pixels
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration         time.Duration
	FramesIn         uint64
	FramesOut        uint64
	TrackingMisses   uint64
	LateFrames       int
	PeakHeapMB       float64
	TotalGCCycles    uint32
	MaxCorrection    float64
	SuspiciousEvents int
	Status           string
}

func main() {
	duration := flag.Duration("duration", 8*time.Hour, "Test duration (e.g., 10m, 8h)")
	fps := flag.Int("fps", 30, "Input frame rate")
	width := flag.Int("width", 320, "Frame width")
	height := flag.Int("height", 180, "Frame height")
	configPath := flag.String("config", "", "Stabilizer configuration JSON (default settings when empty)")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	config := vstab.DefaultConfig()
	if *configPath != "" {
		var err error
		if config, err = vstab.LoadConfig(*configPath); err != nil {
			logger.Error("failed to load configuration", "path", *configPath, "error", err)
			os.Exit(2)
		}
	}

	fmt.Printf("vstab Soak Test Runner\n")
	fmt.Printf("======================\n")
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Input:    %dx%d @ %d fps\n", *width, *height, *fps)
	fmt.Printf("Window:   %d frames each side, margin %.2f\n", config.SmoothingFrames, config.CorrectionMargin)
	fmt.Printf("Pprof:    http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	// Start pprof server in background
	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Warn("pprof server failed", "addr", addr, "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := runSoakTest(ctx, logger, config, image.Pt(*width, *height), *fps, *duration)
	if err != nil {
		logger.Error("soak test failed to start", "error", err)
		os.Exit(2)
	}

	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func runSoakTest(ctx context.Context, logger *slog.Logger, config vstab.Config, size image.Point, fps int, duration time.Duration) (SoakResult, error) {
	stabilizer, err := vstab.NewStabilizer(config, nil, nil)
	if err != nil {
		return SoakResult{}, err
	}
	camera := testutil.NewShakyCamera(size, shakeAmplitude, uint64(time.Now().UnixNano()))
	budget := time.Second / time.Duration(fps)
	margin := stabilizer.StableRegion().Min

	result := SoakResult{Status: "PASS"}
	var memStats runtime.MemStats

	startTime := time.Now()
	lastStatusTime := startTime

	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	logger.Info("starting soak test", "frame_delay", stabilizer.FrameDelay(), "budget", budget)

	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, shutting down gracefully")
			result.Duration = time.Since(startTime)
			collect(&result, stabilizer)
			return result, nil

		case now := <-ticker.C:
			elapsed := now.Sub(startTime)
			if elapsed >= duration {
				result.Duration = elapsed
				collect(&result, stabilizer)
				return result, nil
			}

			begin := time.Now()
			frame := vstab.Frame{Image: camera.Next(), Timestamp: elapsed}
			_, ok := stabilizer.Process(frame)
			if took := time.Since(begin); took > budget {
				result.LateFrames++
				logger.Debug("frame over budget", "took", took, "budget", budget)
			}

			stats := stabilizer.Stats()
			if !ok && stats.FramesIn > uint64(stabilizer.FrameDelay()) {
				logger.Error("output stalled", "frames_in", stats.FramesIn)
				result.SuspiciousEvents++
				result.Status = "FAIL"
			}

			c := stabilizer.Correction().MaxDisplacement()
			if math.IsNaN(c.X) || math.IsNaN(c.Y) {
				logger.Error("NaN correction detected", "elapsed", formatDuration(elapsed))
				result.SuspiciousEvents++
				result.Status = "FAIL"
			}
			if c.X > float64(margin.X)+1e-6 || c.Y > float64(margin.Y)+1e-6 {
				logger.Error("correction outside margin", "x", c.X, "y", c.Y, "margin", margin)
				result.SuspiciousEvents++
				result.Status = "FAIL"
			}
			result.MaxCorrection = math.Max(result.MaxCorrection, math.Max(c.X, c.Y))

			if now.Sub(lastStatusTime) >= statusInterval {
				lastStatusTime = now
				runtime.ReadMemStats(&memStats)

				heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
				result.PeakHeapMB = math.Max(result.PeakHeapMB, heapMB)
				result.TotalGCCycles = memStats.NumGC

				logger.Info("status",
					"elapsed", formatDuration(elapsed),
					"frames_in", stats.FramesIn,
					"frames_out", stats.FramesOut,
					"fps", fmt.Sprintf("%.1f", stats.FrameRate),
					"processing", stats.ProcessingTime,
					"jitter", stats.ProcessingJitter,
					"heap_mb", fmt.Sprintf("%.2f", heapMB),
					"num_gc", memStats.NumGC)

				if heapMB > heapLimitMB {
					logger.Error("memory limit exceeded", "heap_mb", heapMB, "limit_mb", heapLimitMB)
					result.Status = "FAIL"
				}
			}
		}
	}
}

func collect(result *SoakResult, s *vstab.Stabilizer) {
	stats := s.Stats()
	result.FramesIn = stats.FramesIn
	result.FramesOut = stats.FramesOut
	result.TrackingMisses = stats.TrackingMisses

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	result.PeakHeapMB = math.Max(result.PeakHeapMB, float64(memStats.HeapAlloc)/(1024*1024))
	result.TotalGCCycles = memStats.NumGC
}

func printSummary(result SoakResult) {
	fmt.Printf("\n")
	fmt.Printf("Soak Test Complete\n")
	fmt.Printf("==================\n")
	fmt.Printf("Duration:          %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Frames in/out:     %d / %d\n", result.FramesIn, result.FramesOut)
	fmt.Printf("Tracking misses:   %d\n", result.TrackingMisses)
	fmt.Printf("Late frames:       %d\n", result.LateFrames)
	fmt.Printf("Max correction:    %.2f px\n", result.MaxCorrection)
	fmt.Printf("Peak HeapAlloc:    %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles:   %d\n", result.TotalGCCycles)
	fmt.Printf("Suspicious events: %d\n", result.SuspiciousEvents)
	fmt.Printf("Status:            %s\n", result.Status)
	fmt.Printf("\n")

	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - No panics:               %s\n", checkMark(true))
	fmt.Printf("  - Output never stalls:     %s\n", checkMark(result.SuspiciousEvents == 0))
	fmt.Printf("  - Peak memory < %d MB:    %s\n", heapLimitMB, checkMark(result.PeakHeapMB < heapLimitMB))
	fmt.Printf("  - Late frames < 1%%:        %s\n", checkMark(result.FramesIn == 0 || float64(result.LateFrames) < float64(result.FramesIn)/100))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
