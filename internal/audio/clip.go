package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// TargetSampleRate is the rate speech models expect on disk.
const TargetSampleRate = 16000

// Clip is a mono recording as delivered by the capture layer: float samples
// at a known rate. Samples may exceed [-1, 1] when the source was not scaled.
type Clip struct {
	Samples    []float32
	SampleRate int
}

func ClipFromInt16(samples []int16, sampleRate int) Clip {
	return Clip{Samples: int16ToFloat32(samples), SampleRate: sampleRate}
}

// ClipFromPCM16 decodes little-endian signed 16-bit PCM. A trailing odd byte
// is ignored.
func ClipFromPCM16(pcm []byte, sampleRate int) Clip {
	return ClipFromInt16(pcmBytesToInt16(pcm), sampleRate)
}

func (c Clip) Empty() bool {
	return len(c.Samples) == 0
}

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

func (c Clip) Peak() float32 {
	var peak float32
	for _, s := range c.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Normalize scales the clip into [-1, 1] when its peak exceeds 1. Clips that
// already fit are returned unchanged.
func (c Clip) Normalize() Clip {
	peak := c.Peak()
	if peak <= 1.0 {
		return c
	}
	out := make([]float32, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = s / peak
	}
	return Clip{Samples: out, SampleRate: c.SampleRate}
}

// Resample converts the clip to rate using linear interpolation.
func (c Clip) Resample(rate int) Clip {
	if rate <= 0 || c.SampleRate <= 0 || c.SampleRate == rate {
		return c
	}
	ratio := float64(rate) / float64(c.SampleRate)
	out := make([]float32, int(math.Ceil(float64(len(c.Samples))*ratio)))
	resampleLinear(out, c.Samples, ratio)
	return Clip{Samples: out, SampleRate: rate}
}

// PCM16 returns the samples as signed 16-bit values, clipping anything
// outside [-1, 1].
func (c Clip) PCM16() []int16 {
	return float32ToInt16(c.Samples)
}

func resampleLinear(output, input []float32, ratio float64) {
	for i := 0; i < len(output); i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(input) {
			output[i] = input[srcIdx]*(1-frac) + input[srcIdx+1]*frac
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		}
	}
}

func pcmBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / 32768.0
	}
	return result
}

func float32ToInt16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		result[i] = int16(s * 32767.0)
	}
	return result
}
