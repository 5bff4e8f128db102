package main

import (
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/vpiod/pkg/logging"
	"github.com/dougsko/vpiod/pkg/vpio"
)

// handleGetStatus returns the daemon and capture state
func (d *Daemon) handleGetStatus(c *gin.Context) {
	d.mu.Lock()
	capturing := d.capturing
	sessionID := d.sessionID
	aecActive := d.aecActive
	var delivered, dropped int64
	if d.stream != nil {
		delivered, dropped = d.stream.Stats()
	}
	d.mu.Unlock()

	status := gin.H{
		"version":     Version,
		"capturing":   capturing,
		"sample_rate": d.config.Audio.SampleRate,
		"monitor":     d.monitor.Statistics(),
	}
	if capturing {
		status["session_id"] = sessionID
		status["echo_cancel"] = aecActive
		status["frames"] = delivered
		status["dropped"] = dropped
	}
	if d.config.Audio.EnableRender {
		status["playback_buffered"] = d.playback.buffered()
	}

	c.JSON(http.StatusOK, status)
}

type startCaptureRequest struct {
	EchoCancel *bool `json:"echo_cancel"`
}

// handleStartCapture begins a capture session
func (d *Daemon) handleStartCapture(c *gin.Context) {
	var req startCaptureRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	echoCancel := d.config.Audio.EchoCancel
	if req.EchoCancel != nil {
		echoCancel = *req.EchoCancel
	}

	if err := d.StartCapture(echoCancel); err != nil {
		if errors.Is(err, vpio.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "capture already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	d.mu.Lock()
	sessionID := d.sessionID
	d.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "capturing",
		"session_id":  sessionID,
		"echo_cancel": echoCancel,
	})
}

// handleStopCapture ends the current capture session
func (d *Daemon) handleStopCapture(c *gin.Context) {
	if err := d.StopCapture(); err != nil {
		if errors.Is(err, vpio.ErrNotRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "capture not running"})
			return
		}
		// Teardown failures still end the session; report the status.
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// handleGetSessions returns recent capture sessions
func (d *Daemon) handleGetSessions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sessions, err := d.store.GetSessions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleGetSession returns one capture session by ID
func (d *Daemon) handleGetSession(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	session, err := d.store.GetSession(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session)
}

// maxPlaybackBytes caps a single playback upload (10 MB of raw PCM).
const maxPlaybackBytes = 10 << 20

// handlePlayback queues raw little-endian 16-bit PCM for the render path
func (d *Daemon) handlePlayback(c *gin.Context) {
	if !d.config.Audio.EnableRender {
		c.JSON(http.StatusConflict, gin.H{"error": "rendering not enabled"})
		return
	}

	if c.Request.ContentLength > maxPlaybackBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "playback body exceeds 10MB limit"})
		return
	}

	// Read one byte past the limit so chunked uploads over the cap are
	// rejected instead of truncated mid-sample.
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPlaybackBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) > maxPlaybackBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "playback body exceeds 10MB limit"})
		return
	}
	if len(body) == 0 || len(body)%2 != 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be non-empty 16-bit PCM"})
		return
	}

	samples := make([]int16, len(body)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(body[i*2:]))
	}
	d.playback.push(samples)

	c.JSON(http.StatusOK, gin.H{
		"queued_samples": len(samples),
		"buffered":       d.playback.buffered(),
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// handleAudioWebSocket streams captured PCM frames as binary messages and
// level/spectrum updates as JSON text messages
func (d *Daemon) handleAudioWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Errorf("web", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	logging.Info("web", "Audio WebSocket client connected")

	frames := d.subscribe()
	defer d.unsubscribe(frames)

	// Reader goroutine: the client sends nothing we act on, but reads
	// detect disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Level updates at 10Hz alongside the frame stream
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logging.Info("web", "Audio WebSocket client disconnected")
			return

		case frame := <-frames:
			if err := conn.WriteMessage(websocket.BinaryMessage, pcmBytes(frame.Samples)); err != nil {
				logging.Debugf("web", "WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			payload := gin.H{
				"type": "levels",
				"data": d.monitor.Visualization(),
			}
			if err := conn.WriteJSON(payload); err != nil {
				logging.Debugf("web", "WebSocket write error: %v", err)
				return
			}
		}
	}
}

// pcmBytes serializes samples as little-endian 16-bit PCM
func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
