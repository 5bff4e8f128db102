package vpio

import (
	"errors"
	"testing"
)

func newTestStream(t *testing.T, cfg StreamConfig) (*Stream, *MockUnit) {
	t.Helper()

	unit := &MockUnit{}
	cfg.Unit = unit
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	s, err := NewStream(cfg)
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	return s, unit
}

func TestNewStreamValidation(t *testing.T) {
	t.Run("Invalid Sample Rate", func(t *testing.T) {
		if _, err := NewStream(StreamConfig{SampleRate: 0, Unit: &MockUnit{}}); err == nil {
			t.Error("expected error for zero sample rate")
		}
		if _, err := NewStream(StreamConfig{SampleRate: -8000, Unit: &MockUnit{}}); err == nil {
			t.Error("expected error for negative sample rate")
		}
	})

	t.Run("Render Without Callback", func(t *testing.T) {
		_, err := NewStream(StreamConfig{SampleRate: 16000, EnableRender: true, Unit: &MockUnit{}})
		if !errors.Is(err, ErrNoRenderer) {
			t.Errorf("expected ErrNoRenderer, got %v", err)
		}
	})
}

func TestBypassMapping(t *testing.T) {
	t.Run("AEC Enabled", func(t *testing.T) {
		s, unit := newTestStream(t, StreamConfig{})
		if err := s.Start(true, func(Frame) {}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer s.Stop()

		if got := unit.AppliedBypass(); got != 0 {
			t.Errorf("expected bypass 0 with AEC enabled, got %d", got)
		}
	})

	t.Run("AEC Disabled", func(t *testing.T) {
		s, unit := newTestStream(t, StreamConfig{})
		if err := s.Start(false, func(Frame) {}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer s.Stop()

		if got := unit.AppliedBypass(); got != 1 {
			t.Errorf("expected bypass 1 with AEC disabled, got %d", got)
		}
	})
}

func TestLifecycleGuards(t *testing.T) {
	t.Run("Double Start", func(t *testing.T) {
		s, _ := newTestStream(t, StreamConfig{})
		if err := s.Start(true, func(Frame) {}); err != nil {
			t.Fatalf("first Start failed: %v", err)
		}
		defer s.Stop()

		if err := s.Start(true, func(Frame) {}); !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("expected ErrAlreadyRunning, got %v", err)
		}
	})

	t.Run("Stop Without Start", func(t *testing.T) {
		s, _ := newTestStream(t, StreamConfig{})
		if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
			t.Errorf("expected ErrNotRunning, got %v", err)
		}
	})

	t.Run("Double Stop", func(t *testing.T) {
		s, _ := newTestStream(t, StreamConfig{})
		if err := s.Start(true, func(Frame) {}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if err := s.Stop(); err != nil {
			t.Fatalf("first Stop failed: %v", err)
		}
		if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
			t.Errorf("expected ErrNotRunning on second Stop, got %v", err)
		}
	})

	t.Run("Nil Handler", func(t *testing.T) {
		s, _ := newTestStream(t, StreamConfig{})
		if err := s.Start(true, nil); err == nil {
			t.Error("expected error for nil handler")
		}
	})
}

func TestStartFailure(t *testing.T) {
	unit := &MockUnit{StartStatus: -10875} // kAudioUnitErr_FailedInitialization
	s, err := NewStream(StreamConfig{SampleRate: 16000, Unit: unit})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}

	err = s.Start(true, func(Frame) {})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != -10875 {
		t.Errorf("expected status -10875, got %d", statusErr.Status)
	}
	if s.Running() {
		t.Error("stream should not be running after failed start")
	}
}

func TestPushDelivery(t *testing.T) {
	s, unit := newTestStream(t, StreamConfig{})

	var frames []Frame
	if err := s.Start(true, func(f Frame) {
		frames = append(frames, f)
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	unit.Emit(3)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Format != s.Format() {
			t.Errorf("frame %d: format %+v does not match stream format %+v", i, f.Format, s.Format())
		}
		if len(f.Samples) != 256 {
			t.Errorf("frame %d: expected 256 samples, got %d", i, len(f.Samples))
		}
	}

	delivered, dropped := s.Stats()
	if delivered != 3 || dropped != 0 {
		t.Errorf("expected 3 delivered / 0 dropped, got %d / %d", delivered, dropped)
	}
}

func TestPullEndToEnd(t *testing.T) {
	s, unit := newTestStream(t, StreamConfig{SampleRate: 16000})

	frames, err := s.Frames(true)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if got := unit.AppliedBypass(); got != 0 {
		t.Errorf("expected bypass 0, got %d", got)
	}

	unit.Emit(5)

	for i := 0; i < 5; i++ {
		f, ok := <-frames
		if !ok {
			t.Fatalf("channel closed after %d frames, expected 5", i)
		}
		if f.Format.SampleRate != 16000 || f.Format.Channels != 1 || f.Format.BitsPerSample != 16 {
			t.Errorf("frame %d: unexpected format %+v", i, f.Format)
		}
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The sequence is single-pass: no frames after Stop, channel closed.
	if f, ok := <-frames; ok {
		t.Errorf("expected closed channel after Stop, got frame with %d samples", len(f.Samples))
	}
	if err := s.Err(); err != nil {
		t.Errorf("expected clean teardown, got %v", err)
	}
	if !unit.TeardownComplete() {
		t.Error("expected all three teardown stages to run")
	}
}

func TestPullBackpressureDrops(t *testing.T) {
	s, unit := newTestStream(t, StreamConfig{FrameChannelDepth: 2})

	frames, err := s.Frames(false)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}

	// Nobody is reading; everything past the channel depth is dropped.
	unit.Emit(10)

	delivered, dropped := s.Stats()
	if delivered != 10 {
		t.Errorf("expected 10 delivered, got %d", delivered)
	}
	if dropped != 8 {
		t.Errorf("expected 8 dropped, got %d", dropped)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The two buffered frames stay readable, then the channel closes.
	count := 0
	for range frames {
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 buffered frames, got %d", count)
	}
}

func TestTeardownFailureHaltsStages(t *testing.T) {
	unit := &MockUnit{}
	unit.StopStatus[mockStageUninitialize] = -10867 // kAudioUnitErr_Uninitialized

	s, err := NewStream(StreamConfig{SampleRate: 16000, Unit: unit})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	frames, err := s.Frames(true)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}

	err = s.Stop()
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != -10867 {
		t.Errorf("expected status -10867, got %d", statusErr.Status)
	}

	stages := unit.StagesRun()
	if !stages[0] {
		t.Error("expected stop-graph stage to run")
	}
	if stages[1] || stages[2] {
		t.Errorf("expected teardown to halt at the failing stage, got %v", stages)
	}

	// Terminal failure is observable on the closed sequence.
	if _, ok := <-frames; ok {
		t.Error("expected closed channel")
	}
	if !errors.As(s.Err(), &statusErr) {
		t.Errorf("expected Err to report the teardown status, got %v", s.Err())
	}
}

func TestRenderSupply(t *testing.T) {
	rendered := 0
	s, unit := newTestStream(t, StreamConfig{
		EnableRender: true,
		Render: func(out []int16) {
			rendered++
			for i := range out {
				out[i] = int16(i)
			}
		},
	})

	if err := s.Start(true, func(Frame) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if !unit.RenderEnabled() {
		t.Fatal("expected output bus to be configured")
	}

	unit.Emit(4)
	if rendered != 4 {
		t.Errorf("expected render callback 4 times, got %d", rendered)
	}
}

func TestRestartAfterStop(t *testing.T) {
	s, unit := newTestStream(t, StreamConfig{})

	for i := 0; i < 3; i++ {
		if err := s.Start(true, func(Frame) {}); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		if err := s.Stop(); err != nil {
			t.Fatalf("Stop %d failed: %v", i, err)
		}
	}

	if unit.StartCount() != 3 {
		t.Errorf("expected 3 unit starts, got %d", unit.StartCount())
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Op: "AUGraphStart", Status: -10863}
	want := "AUGraphStart failed with status -10863"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
