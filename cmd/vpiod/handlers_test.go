package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dougsko/vpiod/pkg/config"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := config.Default()
	cfg.Audio.EnableRender = true
	cfg.Audio.UseMockUnit = true
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "sessions.db")

	d, err := NewDaemon(cfg)
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	t.Cleanup(func() { d.store.Close() })
	return d
}

func TestPlaybackUpload(t *testing.T) {
	d := newTestDaemon(t)

	t.Run("Queues PCM", func(t *testing.T) {
		body := bytes.Repeat([]byte{0x01, 0x02}, 480)
		req := httptest.NewRequest(http.MethodPost, "/api/playback", bytes.NewReader(body))
		w := httptest.NewRecorder()
		d.server.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if got := d.playback.buffered(); got != 480 {
			t.Errorf("expected 480 buffered samples, got %d", got)
		}
	})

	t.Run("Rejects Oversized Body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/playback", bytes.NewReader([]byte{0, 0}))
		req.ContentLength = maxPlaybackBytes + 2
		w := httptest.NewRecorder()
		d.server.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d", w.Code)
		}
	})

	t.Run("Rejects Oversized Chunked Body", func(t *testing.T) {
		// No Content-Length advertised; the handler has to notice the
		// overrun while reading.
		req := httptest.NewRequest(http.MethodPost, "/api/playback",
			bytes.NewReader(make([]byte, maxPlaybackBytes+2)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		d.server.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d", w.Code)
		}
	})

	t.Run("Rejects Odd Length", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/playback", bytes.NewReader([]byte{1, 2, 3}))
		w := httptest.NewRecorder()
		d.server.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("Rejects Empty Body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/playback", nil)
		w := httptest.NewRecorder()
		d.server.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}
