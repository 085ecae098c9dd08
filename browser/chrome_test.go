package browser_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/anemwatch/browser"
)

// findChrome returns a local Chrome binary or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		t.Skip("no display for a headed browser")
	}
	if path := os.Getenv("CHROME_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome binary found")
	return ""
}

func TestOpenSessionOutlivesStartup(t *testing.T) {
	chrome := findChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!doctype html><html><body><p>page %s</p></body></html>", r.URL.Path)
	}))
	defer srv.Close()

	m := browser.NewManager(browser.Options{ExecPath: chrome, StartTimeout: 30 * time.Second})

	openCtx, cancelOpen := context.WithCancel(context.Background())
	session, err := m.Open(openCtx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer session.Close()
	cancelOpen()

	for _, path := range []string{"/first", "/second"} {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		if err := browser.Navigate(ctx, session, srv.URL+path, 15*time.Second, browser.DefaultPollInterval); err != nil {
			cancel()
			t.Fatalf("navigate %s after open: %v", path, err)
		}
		text, err := session.Text(ctx)
		cancel()
		if err != nil {
			t.Fatalf("text: %v", err)
		}
		if !strings.Contains(text, "page "+path) {
			t.Fatalf("text = %q, want it to contain %q", text, "page "+path)
		}
	}

	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenMissingBinary(t *testing.T) {
	m := browser.NewManager(browser.Options{
		ExecPath:     filepath.Join(t.TempDir(), "no-such-chrome"),
		StartTimeout: 10 * time.Second,
	})

	_, err := m.Open(context.Background())
	var engine browser.ErrEngineUnavailable
	if !errors.As(err, &engine) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestOpenCanceled(t *testing.T) {
	m := browser.NewManager(browser.Options{
		ExecPath:     filepath.Join(t.TempDir(), "no-such-chrome"),
		StartTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Open(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
