package render

import (
	"context"
	"fmt"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const notReadyMessage = "could not detect document ready; capturing anyway"

// findBrowser returns the first Chrome or Chromium binary on PATH.
func findBrowser() string {
	for _, name := range []string{
		"headless-shell",
		"chromium",
		"chromium-browser",
		"google-chrome",
		"google-chrome-stable",
	} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// viewerServer serves body as the editor page for every request.
func viewerServer(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func closedPortURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr
}

func launchForTest(t *testing.T, log *zap.Logger, readyTimeout time.Duration) *Driver {
	t.Helper()
	browser := findBrowser()
	if browser == "" {
		t.Skip("no Chrome or Chromium found on PATH")
	}
	d, err := Launch(context.Background(), Options{
		FileBaseURL:       "http://127.0.0.1:1",
		Language:          "en",
		Width:             1280,
		Height:            900,
		ReadyTimeout:      readyTimeout,
		PollInterval:      50 * time.Millisecond,
		ScreenshotTimeout: 5 * time.Second,
		BrowserPath:       browser,
		ExtraArgs:         []string{"--no-sandbox"},
		Headless:          true,
		Logger:            log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func requirePNGSize(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	require.Equal(t, w, cfg.Width)
	require.Equal(t, h, cfg.Height)
}

func TestCaptureInBrowser(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := launchForTest(t, zap.New(core), 1500*time.Millisecond)
	dir := t.TempDir()

	t.Run("not ready falls through to capture", func(t *testing.T) {
		logs.TakeAll()
		d.opts.ServerURL = viewerServer(t, `<html><body><p>loading</p></body></html>`)
		dest := filepath.Join(dir, "plain-actual.png")

		require.NoError(t, d.Capture(context.Background(), "plain.docx", dest))
		require.Equal(t, 1, logs.FilterMessage(notReadyMessage).Len())
		requirePNGSize(t, dest, 1280, 900)
	})

	t.Run("ready once the mask is hidden", func(t *testing.T) {
		logs.TakeAll()
		d.opts.ServerURL = viewerServer(t, `<html><body>
<div class="documenteditor"><canvas width="100" height="100"></canvas></div>
<div class="asc-loadmask-body">loading</div>
<script>setTimeout(() => {
	document.querySelector(".asc-loadmask-body").style.display = "none";
}, 300);</script>
</body></html>`)
		dest := filepath.Join(dir, "ready-actual.png")

		start := time.Now()
		require.NoError(t, d.Capture(context.Background(), "ready.docx", dest))
		require.Less(t, time.Since(start), 1500*time.Millisecond)
		require.Zero(t, logs.FilterMessage(notReadyMessage).Len())
		requirePNGSize(t, dest, 1280, 900)
	})

	t.Run("unreachable server is a navigation error", func(t *testing.T) {
		d.opts.ServerURL = closedPortURL(t)
		dest := filepath.Join(dir, "down-actual.png")

		err := d.Capture(context.Background(), "down.docx", dest)
		require.ErrorContains(t, err, "navigate:")
		_, statErr := os.Stat(dest)
		require.True(t, os.IsNotExist(statErr))
	})

	// Runs last: the spinning page leaves the tab unusable.
	t.Run("hung page script still times out", func(t *testing.T) {
		logs.TakeAll()
		d.opts.ServerURL = viewerServer(t, `<html><body>
<script>document.addEventListener("DOMContentLoaded", () => setTimeout(() => { for (;;) {} }, 0));</script>
</body></html>`)
		dest := filepath.Join(dir, "hung-actual.png")

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = d.Capture(context.Background(), "hung.docx", dest)
		}()
		select {
		case <-done:
		case <-time.After(20 * time.Second):
			t.Fatal("capture did not return")
		}
		require.Equal(t, 1, logs.FilterMessage(notReadyMessage).Len())
	})
}
