package vpio

// Format describes the PCM stream format applied to the voice-processing
// unit. Capture and render always run mono, 16-bit, packed signed-integer
// linear PCM with one frame per packet; only the sample rate varies.
type Format struct {
	SampleRate      float64
	Channels        int
	BitsPerSample   int
	FramesPerPacket int
}

// NewFormat derives the fixed stream format for a sample rate.
func NewFormat(sampleRate float64) Format {
	return Format{
		SampleRate:      sampleRate,
		Channels:        1,
		BitsPerSample:   16,
		FramesPerPacket: 1,
	}
}

// BytesPerFrame returns the size of one sample frame in bytes.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

// BytesPerPacket returns the size of one packet in bytes.
func (f Format) BytesPerPacket() int {
	return f.FramesPerPacket * f.BytesPerFrame()
}

// Frame is a block of captured PCM samples together with the format they
// were captured in.
type Frame struct {
	Format  Format
	Samples []int16
}

// Duration returns the frame length in seconds.
func (fr Frame) Duration() float64 {
	if fr.Format.SampleRate <= 0 {
		return 0
	}
	return float64(len(fr.Samples)) / fr.Format.SampleRate
}
