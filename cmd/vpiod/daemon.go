package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/vpiod/pkg/config"
	"github.com/dougsko/vpiod/pkg/logging"
	"github.com/dougsko/vpiod/pkg/monitor"
	"github.com/dougsko/vpiod/pkg/recorder"
	"github.com/dougsko/vpiod/pkg/storage"
	"github.com/dougsko/vpiod/pkg/vpio"
)

// Daemon owns the capture stream and the surrounding services: session
// history, level monitoring, optional WAV recording, playback queue, and the
// HTTP/WebSocket API.
type Daemon struct {
	config  *config.Config
	store   *storage.SessionStore
	monitor *monitor.Monitor
	server  *http.Server

	mu        sync.Mutex
	stream    *vpio.Stream
	rec       *recorder.Recorder
	sessionID int64
	capturing bool
	aecActive bool
	loopDone  chan struct{}

	playback *playbackQueue

	subMu sync.Mutex
	subs  map[chan vpio.Frame]struct{}
}

// NewDaemon creates a daemon instance from configuration
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	store, err := storage.NewSessionStore(cfg.Storage.DatabasePath, cfg.Storage.MaxSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	d := &Daemon{
		config:   cfg,
		store:    store,
		monitor:  monitor.New(int(cfg.Audio.SampleRate), cfg.Monitor.FFTSize),
		playback: newPlaybackQueue(),
		subs:     make(map[chan vpio.Frame]struct{}),
	}

	d.setupWebServer()
	return d, nil
}

// Start brings up the web server. Capture starts on demand through the API.
func (d *Daemon) Start() error {
	go func() {
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("daemon", "Web server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts down capture and the web server.
func (d *Daemon) Stop() error {
	if err := d.StopCapture(); err != nil && err != vpio.ErrNotRunning {
		logging.Errorf("daemon", "Error stopping capture: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop web server: %w", err)
	}

	return d.store.Close()
}

// newStream builds a stream from the daemon configuration. Each capture
// session gets a fresh stream.
func (d *Daemon) newStream() (*vpio.Stream, error) {
	streamCfg := vpio.StreamConfig{
		SampleRate:        d.config.Audio.SampleRate,
		FrameChannelDepth: d.config.Audio.FrameChannelDepth,
	}
	if d.config.Audio.EnableRender {
		streamCfg.EnableRender = true
		streamCfg.Render = d.playback.fill
	}
	if d.config.Audio.UseMockUnit {
		streamCfg.Unit = &vpio.MockUnit{Interval: 20 * time.Millisecond}
	}
	return vpio.NewStream(streamCfg)
}

// StartCapture opens the voice-processing unit and begins a session.
func (d *Daemon) StartCapture(echoCancel bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capturing {
		return vpio.ErrAlreadyRunning
	}

	stream, err := d.newStream()
	if err != nil {
		return err
	}

	frames, err := stream.Frames(echoCancel)
	if err != nil {
		return err
	}

	sessionID, err := d.store.BeginSession(d.config.Audio.SampleRate, echoCancel)
	if err != nil {
		stream.Stop()
		return err
	}

	var rec *recorder.Recorder
	if d.config.Recording.Enabled {
		path := recorder.SessionPath(d.config.Recording.Directory, time.Now())
		rec, err = recorder.New(path, stream.Format())
		if err != nil {
			stream.Stop()
			return err
		}
		logging.Infof("daemon", "Recording to %s", path)
	}

	d.stream = stream
	d.rec = rec
	d.sessionID = sessionID
	d.capturing = true
	d.aecActive = echoCancel
	d.loopDone = make(chan struct{})

	go d.captureLoop(frames, d.loopDone)

	logging.Infof("daemon", "Capture started (session %d, echo cancel: %t)", sessionID, echoCancel)
	return nil
}

// StopCapture tears the unit down and finalizes the session. The stream is
// stopped outside the daemon lock so the capture loop can drain and exit.
func (d *Daemon) StopCapture() error {
	d.mu.Lock()
	if !d.capturing {
		d.mu.Unlock()
		return vpio.ErrNotRunning
	}
	d.capturing = false
	stream := d.stream
	rec := d.rec
	sessionID := d.sessionID
	loopDone := d.loopDone
	d.stream = nil
	d.rec = nil
	d.mu.Unlock()

	stopErr := stream.Stop()
	<-loopDone

	delivered, dropped := stream.Stats()

	outputFile := ""
	if rec != nil {
		outputFile = rec.Path()
		if err := rec.Close(); err != nil {
			logging.Errorf("daemon", "Error closing recording: %v", err)
		}
	}

	if err := d.store.EndSession(sessionID, delivered, dropped, outputFile); err != nil {
		logging.Errorf("daemon", "Error finalizing session %d: %v", sessionID, err)
	}

	logging.Infof("daemon", "Capture stopped (session %d, %d frames, %d dropped)",
		sessionID, delivered, dropped)

	return stopErr
}

// captureLoop drains the frame channel until Stop closes it.
func (d *Daemon) captureLoop(frames <-chan vpio.Frame, done chan struct{}) {
	defer close(done)

	for frame := range frames {
		d.monitor.ProcessFrame(frame)

		if rec := d.currentRecorder(); rec != nil {
			if err := rec.Write(frame); err != nil {
				logging.Errorf("daemon", "Recording write failed: %v", err)
			}
		}

		d.broadcast(frame)
	}
}

func (d *Daemon) currentRecorder() *recorder.Recorder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec
}

// subscribe registers a frame channel for websocket delivery.
func (d *Daemon) subscribe() chan vpio.Frame {
	ch := make(chan vpio.Frame, 8)
	d.subMu.Lock()
	d.subs[ch] = struct{}{}
	d.subMu.Unlock()
	return ch
}

func (d *Daemon) unsubscribe(ch chan vpio.Frame) {
	d.subMu.Lock()
	delete(d.subs, ch)
	d.subMu.Unlock()
}

// broadcast fans a frame out to websocket subscribers, dropping for slow
// clients rather than stalling the capture loop.
func (d *Daemon) broadcast(frame vpio.Frame) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	for ch := range d.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (d *Daemon) setupWebServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/status", d.handleGetStatus)
		api.POST("/capture/start", d.handleStartCapture)
		api.POST("/capture/stop", d.handleStopCapture)
		api.GET("/sessions", d.handleGetSessions)
		api.GET("/sessions/:id", d.handleGetSession)
		api.POST("/playback", d.handlePlayback)
	}
	router.GET("/ws/audio", d.handleAudioWebSocket)

	d.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port),
		Handler: router,
	}
}

// playbackQueue buffers queued samples for the render callback. The render
// side runs on the audio thread, so fill only ever takes the lock briefly
// and pads with silence when the queue runs dry.
type playbackQueue struct {
	mu      sync.Mutex
	pending []int16
}

func newPlaybackQueue() *playbackQueue {
	return &playbackQueue{}
}

// push queues samples for playback.
func (q *playbackQueue) push(samples []int16) {
	q.mu.Lock()
	q.pending = append(q.pending, samples...)
	q.mu.Unlock()
}

// fill satisfies vpio.RenderFunc.
func (q *playbackQueue) fill(out []int16) {
	q.mu.Lock()
	n := copy(out, q.pending)
	q.pending = q.pending[n:]
	q.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// buffered returns the number of queued samples.
func (q *playbackQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
