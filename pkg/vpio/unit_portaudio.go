//go:build !darwin && cgo

package vpio

import (
	"fmt"
	"log"
	"time"

	"github.com/gordonklaus/portaudio"
)

// portAudioUnit is the capture backend for platforms without a
// voice-processing audio unit. PortAudio provides the device I/O but no
// hardware echo cancellation, so the bypass value is recorded and capture
// behaves as if voice processing were bypassed regardless of the flag.
type portAudioUnit struct {
	cfg     UnitConfig
	input   *portaudio.Stream
	output  *portaudio.Stream
	inBuf   []int16
	outBuf  []int16
	done    chan struct{}
	workers chan struct{}
}

func newPlatformUnit() Unit {
	return &portAudioUnit{}
}

// paFramesPerBuffer picks roughly 16 ms of audio per buffer, clamped so
// tiny sample rates still get a workable read size.
func paFramesPerBuffer(f Format) int {
	frames := int(f.SampleRate) / 60
	if frames < 256 {
		frames = 256
	}
	return frames
}

func (u *portAudioUnit) Start(cfg UnitConfig) error {
	u.cfg = cfg
	if cfg.Bypass == 0 {
		log.Printf("vpio: no voice-processing unit on this platform, capturing without echo cancellation")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio initialize: %w", err)
	}

	frames := paFramesPerBuffer(cfg.Format)
	u.inBuf = make([]int16, frames)
	input, err := portaudio.OpenDefaultStream(cfg.Format.Channels, 0, cfg.Format.SampleRate, frames, u.inBuf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open capture stream: %w", err)
	}
	u.input = input

	if cfg.Render != nil {
		u.outBuf = make([]int16, frames)
		output, err := portaudio.OpenDefaultStream(0, cfg.Format.Channels, cfg.Format.SampleRate, frames, u.outBuf)
		if err != nil {
			u.input.Close()
			portaudio.Terminate()
			return fmt.Errorf("open render stream: %w", err)
		}
		u.output = output
	}

	if err := u.input.Start(); err != nil {
		u.closeStreams()
		portaudio.Terminate()
		return fmt.Errorf("start capture stream: %w", err)
	}
	if u.output != nil {
		if err := u.output.Start(); err != nil {
			u.input.Stop()
			u.closeStreams()
			portaudio.Terminate()
			return fmt.Errorf("start render stream: %w", err)
		}
	}

	u.done = make(chan struct{})
	workers := 1
	if u.output != nil {
		workers = 2
	}
	u.workers = make(chan struct{}, workers)

	go u.captureWorker()
	if u.output != nil {
		go u.renderWorker()
	}
	return nil
}

func (u *portAudioUnit) Stop() error {
	close(u.done)
	for i := 0; i < cap(u.workers); i++ {
		<-u.workers
	}

	var firstErr error
	if err := u.input.Stop(); err != nil {
		firstErr = fmt.Errorf("stop capture stream: %w", err)
	}
	if u.output != nil && firstErr == nil {
		if err := u.output.Stop(); err != nil {
			firstErr = fmt.Errorf("stop render stream: %w", err)
		}
	}
	u.closeStreams()
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("portaudio terminate: %w", err)
	}
	return firstErr
}

func (u *portAudioUnit) closeStreams() {
	if u.input != nil {
		u.input.Close()
	}
	if u.output != nil {
		u.output.Close()
	}
}

// captureWorker blocks on PortAudio reads and forwards each full buffer to
// the input callback.
func (u *portAudioUnit) captureWorker() {
	defer func() { u.workers <- struct{}{} }()

	for {
		select {
		case <-u.done:
			return
		default:
		}

		if err := u.input.Read(); err != nil {
			// Overflows happen when the process stalls; skip the
			// buffer and keep capturing.
			if err == portaudio.InputOverflowed {
				continue
			}
			log.Printf("vpio: capture read error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		samples := make([]int16, len(u.inBuf))
		copy(samples, u.inBuf)
		u.cfg.OnInput(samples)
	}
}

// renderWorker pulls playback samples from the render callback and writes
// them out.
func (u *portAudioUnit) renderWorker() {
	defer func() { u.workers <- struct{}{} }()

	for {
		select {
		case <-u.done:
			return
		default:
		}

		u.cfg.Render(u.outBuf)
		if err := u.output.Write(); err != nil {
			if err == portaudio.OutputUnderflowed {
				continue
			}
			log.Printf("vpio: render write error: %v", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}
