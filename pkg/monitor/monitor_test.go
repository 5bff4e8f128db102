package monitor

import (
	"math"
	"testing"

	"github.com/dougsko/vpiod/pkg/vpio"
)

// sineFrame builds one frame of a sine tone at the given frequency and
// amplitude (0..1 of full scale).
func sineFrame(sampleRate, samples int, freq, amplitude float64) vpio.Frame {
	data := make([]int16, samples)
	for i := range data {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		data[i] = int16(v * 32767)
	}
	return vpio.Frame{Format: vpio.NewFormat(float64(sampleRate)), Samples: data}
}

func TestLevelsFromSine(t *testing.T) {
	m := New(16000, 1024)
	m.ProcessFrame(sineFrame(16000, 1024, 1000, 0.5))

	levels := m.Levels()

	// Half-scale sine: RMS = 0.5/sqrt(2) of full scale, about -9 dB.
	if levels.RMSLevel < -11 || levels.RMSLevel > -7 {
		t.Errorf("expected RMS near -9 dB, got %v", levels.RMSLevel)
	}
	// Peak about -6 dB.
	if levels.PeakLevel < -7 || levels.PeakLevel > -5 {
		t.Errorf("expected peak near -6 dB, got %v", levels.PeakLevel)
	}
	if levels.Clipping {
		t.Error("half-scale sine should not clip")
	}
}

func TestClippingDetection(t *testing.T) {
	m := New(16000, 1024)

	data := make([]int16, 256)
	for i := range data {
		data[i] = 32700
	}
	m.ProcessSamples(data)

	if !m.Levels().Clipping {
		t.Error("expected clipping to be detected")
	}
}

func TestFullScaleNegativePeak(t *testing.T) {
	m := New(16000, 1024)

	data := make([]int16, 256)
	for i := range data {
		data[i] = math.MinInt16
	}
	m.ProcessSamples(data)

	levels := m.Levels()
	if levels.PeakLevel < -0.1 || levels.PeakLevel > 0.1 {
		t.Errorf("expected 0 dB peak for full-scale negative samples, got %v", levels.PeakLevel)
	}
	if !levels.Clipping {
		t.Error("expected full-scale negative samples to register as clipping")
	}
}

func TestSilence(t *testing.T) {
	m := New(16000, 1024)
	m.ProcessSamples(make([]int16, 512))

	levels := m.Levels()
	if levels.RMSLevel != -100 {
		t.Errorf("expected floor RMS for silence, got %v", levels.RMSLevel)
	}
	if levels.PeakLevel != -100 {
		t.Errorf("expected floor peak for silence, got %v", levels.PeakLevel)
	}
}

func TestSpectrumPeakBin(t *testing.T) {
	const (
		sampleRate = 16000
		fftSize    = 1024
		freq       = 1000.0
	)

	m := New(sampleRate, fftSize)
	m.ProcessFrame(sineFrame(sampleRate, fftSize, freq, 0.8))

	spec := m.Spectrum()
	if len(spec.Spectrum) != fftSize/2 {
		t.Fatalf("expected %d bins, got %d", fftSize/2, len(spec.Spectrum))
	}

	peakBin := 0
	for i, v := range spec.Spectrum {
		if v > spec.Spectrum[peakBin] {
			peakBin = i
		}
	}

	expectedBin := int(freq / (float64(sampleRate) / float64(fftSize)))
	if peakBin < expectedBin-2 || peakBin > expectedBin+2 {
		t.Errorf("expected spectral peak near bin %d, got %d", expectedBin, peakBin)
	}

	wantStep := float32(sampleRate) / float32(fftSize)
	if spec.FreqStep != wantStep {
		t.Errorf("expected frequency step %v, got %v", wantStep, spec.FreqStep)
	}
}

func TestEmptyInputIgnored(t *testing.T) {
	m := New(16000, 1024)
	m.ProcessSamples(nil)

	stats := m.Statistics()
	if stats["frame_count"].(int64) != 0 {
		t.Error("expected empty input to be ignored")
	}
}
