package definition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grids.yaml")
	writeFile(t, path, "grids:\n  - {id: a, dataset: a}\n")

	reloads := make(chan []Grid, 4)
	w, err := NewWatcher(path, func(_ context.Context, grids []Grid) error {
		reloads <- grids
		return nil
	}, WatcherOptions{
		Debounce: 20 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	// Unrelated files in the directory are ignored.
	writeFile(t, filepath.Join(dir, "other.yaml"), "x")
	// An invalid save keeps the last good definitions.
	writeFile(t, path, "grids: [")
	time.Sleep(100 * time.Millisecond)
	select {
	case g := <-reloads:
		t.Fatalf("unexpected reload: %v", g)
	default:
	}

	writeFile(t, path, "grids:\n  - {id: a, dataset: a}\n  - {id: b, dataset: b}\n")
	select {
	case grids := <-reloads:
		if len(grids) != 2 || grids[1].ID != "b" {
			t.Errorf("reloaded grids = %+v", grids)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grids.yaml")
	writeFile(t, path, "")

	w, err := NewWatcher(path, func(context.Context, []Grid) error { return nil }, WatcherOptions{})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("second Close() error = %v, want ErrWatcherClosed", err)
	}
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "grids.yaml")
	if _, err := NewWatcher(path, nil, WatcherOptions{}); err == nil {
		t.Error("NewWatcher() expected error for a missing directory")
	}
}
