// Package recorder writes captured PCM frames to WAV files.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dougsko/vpiod/pkg/vpio"
)

// Recorder streams frames into a single WAV file. Write and Close are safe
// to call from different goroutines.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	format  vpio.Format
	path    string
	samples int64
	closed  bool
}

// New creates a WAV file for the given stream format. The directory is
// created if needed.
func New(path string, format vpio.Format) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	enc := wav.NewEncoder(f, int(format.SampleRate), format.BitsPerSample, format.Channels, 1)
	return &Recorder{
		file:    f,
		encoder: enc,
		format:  format,
		path:    path,
	}, nil
}

// SessionPath builds a timestamped file name inside dir.
func SessionPath(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format("capture-20060102-150405.wav"))
}

// Write appends one frame to the file.
func (r *Recorder) Write(frame vpio.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder already closed")
	}

	data := make([]int, len(frame.Samples))
	for i, s := range frame.Samples {
		data[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: r.format.Channels,
			SampleRate:  int(r.format.SampleRate),
		},
		Data:           data,
		SourceBitDepth: r.format.BitsPerSample,
	}
	if err := r.encoder.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}

	r.samples += int64(len(frame.Samples))
	return nil
}

// Samples returns the number of samples written so far.
func (r *Recorder) Samples() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Path returns the output file path.
func (r *Recorder) Path() string {
	return r.path
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.encoder.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to finalize recording: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close recording file: %w", err)
	}
	return nil
}
