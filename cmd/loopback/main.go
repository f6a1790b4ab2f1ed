// Loopback Stabilization Demo
//
// This server streams a synthetic shaky camera between two in-process Pion
// PeerConnections using the raw luma codec. The receiver stabilizes the
// stream in its interceptor chain; the browser UI shows raw and stabilized
// frames with live stats.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thesyncim/vstab/cmd/loopback/server"
	"github.com/thesyncim/vstab/pkg/vstab"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	configPath := flag.String("config", "", "Stabilizer configuration JSON")
	width := flag.Int("width", 320, "Frame width")
	height := flag.Int("height", 180, "Frame height")
	fps := flag.Int("fps", 30, "Frame rate")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	cfg.FrameSize = image.Pt(*width, *height)
	cfg.FPS = *fps
	cfg.Logger = logger
	if *configPath != "" {
		stab, err := vstab.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load configuration", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg.Stabilizer = stab
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	listenAddr, err := srv.Start()
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	fmt.Printf(`
vstab Loopback Demo
===================
1. Open http://%s in a browser
2. Click "Start Session"
3. Compare the raw and stabilized frames

`, listenAddr)
	logger.Info("listening", "addr", listenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
