// Package vpio wraps the platform voice-processing audio unit: configure a
// mono 16-bit PCM stream, start capture, receive echo-cancelled frames via a
// callback or a channel, optionally render playback audio through the same
// unit, and tear everything down cleanly. All echo-cancellation work happens
// inside the operating system's audio subsystem; this package only marshals
// configuration, wires the real-time callbacks, and propagates status codes
// as typed errors.
package vpio

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// FrameHandler receives one captured PCM frame per input callback. It runs
// on the platform's real-time audio thread and must not block.
type FrameHandler func(Frame)

// RenderFunc fills out with playback samples on every output callback. It
// runs on the platform's real-time audio thread and must not block.
type RenderFunc func(out []int16)

// Unit is the seam between the Stream lifecycle and the platform
// voice-processing implementation. The darwin build binds it to a CoreAudio
// AUGraph with a VoiceProcessingIO node; other platforms fall back to
// PortAudio capture without hardware echo cancellation.
type Unit interface {
	// Start builds, configures and starts the platform unit. The first
	// failing platform call aborts the sequence and is returned as a
	// *StatusError.
	Start(UnitConfig) error

	// Stop performs the three-stage teardown: stop the graph,
	// uninitialize the unit, dispose the graph. The first failing status
	// is returned and halts further teardown steps.
	Stop() error
}

// UnitConfig carries everything a Unit needs at start time.
type UnitConfig struct {
	Format Format

	// Bypass is the platform bypass property value: 0 runs the
	// voice-processing path, 1 skips it.
	Bypass uint32

	// OnInput is invoked with each captured frame.
	OnInput func(samples []int16)

	// Render supplies playback samples; nil leaves the output bus
	// disabled.
	Render RenderFunc
}

// StreamConfig configures a Stream.
type StreamConfig struct {
	// SampleRate in Hz. Required.
	SampleRate float64

	// EnableRender opens the output bus. Requires Render.
	EnableRender bool

	// Render supplies playback samples when rendering is enabled.
	Render RenderFunc

	// FrameChannelDepth is the buffer depth of the channel returned by
	// Frames. Frames are dropped, not blocked on, when the consumer
	// lags. Defaults to 16.
	FrameChannelDepth int

	// Unit overrides the platform voice-processing unit. Nil selects
	// the platform implementation; tests and hosts without audio
	// hardware can supply a MockUnit.
	Unit Unit
}

// Stream wraps one platform voice-processing unit. Lifecycle: idle after
// NewStream, running after a successful Start or Frames, idle again after
// Stop. A Stream is not restartable concurrently with itself; Start, Frames
// and Stop serialize on an internal mutex.
type Stream struct {
	format Format
	render RenderFunc
	depth  int
	unit   Unit

	mu      sync.Mutex
	running bool
	frames  chan Frame
	err     error

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewStream creates an idle stream for the given configuration. Enabling
// render without a render callback is rejected here rather than trapping in
// the output callback later.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("vpio: invalid sample rate %v", cfg.SampleRate)
	}
	if cfg.EnableRender && cfg.Render == nil {
		return nil, ErrNoRenderer
	}

	depth := cfg.FrameChannelDepth
	if depth <= 0 {
		depth = 16
	}

	s := &Stream{
		format: NewFormat(cfg.SampleRate),
		depth:  depth,
		unit:   cfg.Unit,
	}
	if cfg.EnableRender || cfg.Render != nil {
		s.render = cfg.Render
	}
	if s.unit == nil {
		s.unit = newPlatformUnit()
	}
	return s, nil
}

// Format returns the fixed stream format.
func (s *Stream) Format() Format {
	return s.format
}

// Start begins capture in push mode: handler is invoked with every captured
// frame on the platform audio thread. aecEnabled toggles the unit's
// voice-processing bypass (enabled means bypass off).
func (s *Stream) Start(aecEnabled bool, handler FrameHandler) error {
	if handler == nil {
		return fmt.Errorf("vpio: nil frame handler")
	}
	return s.start(aecEnabled, handler, nil)
}

// Frames begins capture in pull mode and returns the channel frames are
// delivered on. The sequence is lazy and single-pass: the channel is closed
// by Stop, after which no further frames are delivered and Err reports any
// terminal failure. When the consumer falls behind the channel depth, frames
// are dropped and counted rather than blocking the audio thread.
func (s *Stream) Frames(aecEnabled bool) (<-chan Frame, error) {
	ch := make(chan Frame, s.depth)
	err := s.start(aecEnabled, func(f Frame) {
		select {
		case ch <- f:
		default:
			s.dropped.Add(1)
		}
	}, ch)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Stream) start(aecEnabled bool, handler FrameHandler, frames chan Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	cfg := UnitConfig{
		Format: s.format,
		Bypass: bypassValue(aecEnabled),
		Render: s.render,
		OnInput: func(samples []int16) {
			s.delivered.Add(1)
			handler(Frame{Format: s.format, Samples: samples})
		},
	}
	if err := s.unit.Start(cfg); err != nil {
		return err
	}

	s.running = true
	s.frames = frames
	s.err = nil
	return nil
}

// Stop tears the unit down and, in pull mode, closes the frame channel. The
// first failing teardown status is recorded, returned, and halts the
// remaining teardown steps.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	s.running = false

	err := s.unit.Stop()
	s.err = err

	if s.frames != nil {
		close(s.frames)
		s.frames = nil
	}
	return err
}

// Err returns the terminal error recorded by the most recent Stop, if any.
// Useful to pull-mode consumers after the frame channel closes.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Running reports whether the stream is between a successful Start/Frames
// and the matching Stop.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns the number of frames delivered to the handler and the
// number dropped because the pull-mode consumer lagged.
func (s *Stream) Stats() (delivered, dropped int64) {
	return s.delivered.Load(), s.dropped.Load()
}

// bypassValue maps the echo-cancellation flag onto the unit's bypass
// property: enabled -> 0, disabled -> 1.
func bypassValue(aecEnabled bool) uint32 {
	if aecEnabled {
		return 0
	}
	return 1
}
