// Package monitor derives real-time level and spectrum measurements from
// captured PCM frames for the daemon's websocket clients.
package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/dougsko/vpiod/pkg/vpio"
)

// LevelData represents real-time audio level measurements
type LevelData struct {
	Timestamp int64   `json:"timestamp"`
	RMSLevel  float32 `json:"rms"`      // RMS level in dB
	PeakLevel float32 `json:"peak"`     // Peak level in dB
	Clipping  bool    `json:"clipping"` // True if clipping detected
}

// SpectrumData represents FFT spectrum analysis
type SpectrumData struct {
	Timestamp  int64     `json:"timestamp"`
	SampleRate int       `json:"sample_rate"`
	Spectrum   []float32 `json:"spectrum"`  // Magnitude spectrum in dB
	FreqStep   float32   `json:"freq_step"` // Frequency per bin in Hz
}

// VisualizationData combines level and spectrum data
type VisualizationData struct {
	LevelData
	SpectrumData
}

// Monitor accumulates captured frames and computes levels and a windowed
// magnitude spectrum. Safe for one producer and any number of readers.
type Monitor struct {
	mutex sync.RWMutex

	sampleRate int
	fftSize    int

	currentRMS  float32
	currentPeak float32
	isClipping  bool

	spectrum     []float32
	spectrumTime time.Time

	sampleBuffer []int16
	window       []float64

	frameCount int64
	clipCount  int64
}

// New creates a monitor for the given sample rate and FFT size. fftSize
// must be a power of two.
func New(sampleRate, fftSize int) *Monitor {
	// Hann coefficients: the gonum window transforms apply in place, so
	// run one over a unit sequence once and reuse the result.
	coeffs := make([]float64, fftSize)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hann(coeffs)

	return &Monitor{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		spectrum:   make([]float32, fftSize/2),
		window:     coeffs,
	}
}

// ProcessFrame feeds one captured frame into the monitor.
func (m *Monitor) ProcessFrame(f vpio.Frame) {
	m.ProcessSamples(f.Samples)
}

// ProcessSamples feeds raw samples into the monitor.
func (m *Monitor) ProcessSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.calculateLevels(samples)

	m.sampleBuffer = append(m.sampleBuffer, samples...)
	if len(m.sampleBuffer) >= m.fftSize {
		m.calculateSpectrum()
		// Keep only the newest fftSize samples
		if len(m.sampleBuffer) > m.fftSize {
			copy(m.sampleBuffer, m.sampleBuffer[len(m.sampleBuffer)-m.fftSize:])
			m.sampleBuffer = m.sampleBuffer[:m.fftSize]
		}
	}

	m.frameCount++
}

func (m *Monitor) calculateLevels(samples []int16) {
	var sumSquares float64
	var peak int
	clipping := false

	for _, s := range samples {
		// Widen before negating: -int16(-32768) overflows back to itself.
		sample := int(s)
		if sample < 0 {
			sample = -sample
		}
		if sample > peak {
			peak = sample
		}
		if sample >= 32000 { // ~98% of max int16
			clipping = true
			m.clipCount++
		}
		sumSquares += float64(sample) * float64(sample)
	}

	rms := math.Sqrt(sumSquares / float64(len(samples)))
	if rms > 0 {
		m.currentRMS = float32(20.0 * math.Log10(rms/32768.0))
	} else {
		m.currentRMS = -100.0
	}

	if peak > 0 {
		m.currentPeak = float32(20.0 * math.Log10(float64(peak)/32768.0))
	} else {
		m.currentPeak = -100.0
	}

	m.isClipping = clipping
}

func (m *Monitor) calculateSpectrum() {
	windowed := make([]float64, m.fftSize)
	for i := 0; i < m.fftSize; i++ {
		sample := float64(m.sampleBuffer[i]) / 32768.0 // Normalize to [-1, 1]
		windowed[i] = sample * m.window[i]
	}

	fftResult := fft.FFTReal(windowed)

	for i := 0; i < len(m.spectrum); i++ {
		magnitude := math.Hypot(real(fftResult[i]), imag(fftResult[i]))
		if magnitude > 0 {
			m.spectrum[i] = float32(20.0 * math.Log10(magnitude))
		} else {
			m.spectrum[i] = -100.0
		}
	}

	m.spectrumTime = time.Now()
}

// Levels returns the most recent level measurements.
func (m *Monitor) Levels() LevelData {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return LevelData{
		Timestamp: time.Now().UnixMilli(),
		RMSLevel:  m.currentRMS,
		PeakLevel: m.currentPeak,
		Clipping:  m.isClipping,
	}
}

// Spectrum returns a copy of the most recent magnitude spectrum.
func (m *Monitor) Spectrum() SpectrumData {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	spectrum := make([]float32, len(m.spectrum))
	copy(spectrum, m.spectrum)

	return SpectrumData{
		Timestamp:  m.spectrumTime.UnixMilli(),
		SampleRate: m.sampleRate,
		Spectrum:   spectrum,
		FreqStep:   float32(m.sampleRate) / float32(m.fftSize),
	}
}

// Visualization returns combined level and spectrum data.
func (m *Monitor) Visualization() VisualizationData {
	return VisualizationData{
		LevelData:    m.Levels(),
		SpectrumData: m.Spectrum(),
	}
}

// Statistics returns counters accumulated since creation.
func (m *Monitor) Statistics() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return map[string]interface{}{
		"frame_count": m.frameCount,
		"clip_count":  m.clipCount,
	}
}
