package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/vpiod/pkg/vpio"
)

func TestRecorderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wav")
	format := vpio.NewFormat(16000)

	rec, err := New(path, format)
	require.NoError(t, err)

	frame := vpio.Frame{Format: format, Samples: make([]int16, 320)}
	for i := range frame.Samples {
		frame.Samples[i] = int16(i - 160)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Write(frame))
	}
	assert.Equal(t, int64(960), rec.Samples())
	require.NoError(t, rec.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile(), "expected a valid WAV file")

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 16000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Len(t, buf.Data, 960)

	// Spot-check the first frame survived intact.
	for i := 0; i < 320; i++ {
		if buf.Data[i] != i-160 {
			t.Fatalf("sample %d: expected %d, got %d", i, i-160, buf.Data[i])
		}
	}
}

func TestRecorderCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "out.wav")

	rec, err := New(path, vpio.NewFormat(8000))
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestWriteAfterClose(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(filepath.Join(dir, "closed.wav"), vpio.NewFormat(16000))
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	err = rec.Write(vpio.Frame{Samples: make([]int16, 16)})
	assert.Error(t, err)

	// Close is idempotent.
	assert.NoError(t, rec.Close())
}

func TestSessionPath(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	got := SessionPath("/tmp/rec", now)
	assert.Equal(t, "/tmp/rec/capture-20250314-092653.wav", got)
}
