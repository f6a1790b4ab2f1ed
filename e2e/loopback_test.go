//go:build e2e

package e2e

import (
	"context"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/thesyncim/vstab/cmd/loopback/server"
	"github.com/thesyncim/vstab/pkg/vstab/testutil"
)

func startLoopback(t *testing.T) string {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.FrameSize = image.Pt(160, 90)
	cfg.Stabilizer.SmoothingFrames = 10

	srv, err := server.NewServer(cfg)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("server shutdown error: %v", err)
		}
	})
	t.Logf("Server started on %s", addr)
	return "http://" + addr
}

func openBrowser(t *testing.T, url string) *testutil.BrowserClient {
	t.Helper()
	client, err := testutil.NewBrowserClient(testutil.DefaultBrowserConfig())
	if err != nil {
		t.Fatalf("failed to create browser: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("browser close error: %v", err)
		}
	})
	if _, err := client.Navigate(url); err != nil {
		t.Fatalf("failed to navigate: %v", err)
	}
	if err := client.WaitStable(); err != nil {
		t.Fatalf("page not stable: %v", err)
	}
	return client
}

// TestLoopback_PageLoads is a smoke test of the server and browser setup.
func TestLoopback_PageLoads(t *testing.T) {
	client := openBrowser(t, startLoopback(t))

	title := client.Page().MustElement("title").MustText()
	if !strings.Contains(title, "vstab") {
		t.Errorf("unexpected page title: got %q, want contains 'vstab'", title)
	}
}

// TestLoopback_ShowsStabilizedFrames starts a session from the page and
// waits for stabilized frames to be displayed.
func TestLoopback_ShowsStabilizedFrames(t *testing.T) {
	client := openBrowser(t, startLoopback(t))

	client.Page().MustElement("#start").MustClick()

	if err := client.WaitFor(`() => window.vstab.stats !== null && window.vstab.stats.frames_received > 0`); err != nil {
		errMsg, _ := client.Eval(`() => window.vstab.error`)
		t.Fatalf("no stabilized frames: %v (page error: %v)", err, errMsg)
	}
	if err := client.WaitFor(`() => document.getElementById('stable').naturalWidth === 160`); err != nil {
		t.Fatalf("stabilized frame not rendered: %v", err)
	}

	state, err := client.Eval(`() => window.vstab.stats.state`)
	if err != nil {
		t.Fatalf("failed to read state: %v", err)
	}
	if state != "connected" {
		t.Errorf("session state = %v, want connected", state)
	}
	delay, err := client.Eval(`() => window.vstab.stats.frame_delay`)
	if err != nil {
		t.Fatalf("failed to read frame delay: %v", err)
	}
	// JSON numbers arrive as float64.
	if delay != float64(11) {
		t.Errorf("frame_delay = %v, want 11", delay)
	}
}

// TestLoopback_ApplyConfig changes the smoothing window from the page.
func TestLoopback_ApplyConfig(t *testing.T) {
	client := openBrowser(t, startLoopback(t))
	page := client.Page()

	page.MustElement("#start").MustClick()
	if err := client.WaitFor(`() => window.vstab.stats !== null`); err != nil {
		t.Fatalf("session did not start: %v", err)
	}

	page.MustElement("#smoothing").MustSelectAllText().MustInput("4")
	page.MustElement("#apply").MustClick()

	if err := client.WaitFor(`() => window.vstab.stats.frame_delay === 5`); err != nil {
		t.Fatalf("new window not applied: %v", err)
	}
}
