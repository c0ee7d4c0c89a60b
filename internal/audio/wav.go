package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eleven-am/dictation/internal/shared"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth    = 16
	wavChannels    = 1
	wavFormatPCM   = 1
	tempFilePrefix = "dictation_"
)

var ErrEmptyClip = errors.New("clip has no samples")

// WriteWAV persists clip as mono 16-bit PCM at rate (TargetSampleRate when
// rate is zero), normalising the amplitude first.
func WriteWAV(path string, clip Clip, rate int) error {
	if clip.Empty() {
		return ErrEmptyClip
	}
	if rate <= 0 {
		rate = TargetSampleRate
	}
	clip = clip.Normalize().Resample(rate)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	enc := wav.NewEncoder(f, rate, wavBitDepth, wavChannels, wavFormatPCM)
	pcm := clip.PCM16()
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: wavChannels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("finalise wav: %w", err)
	}
	return f.Close()
}

// WriteTempWAV writes clip to a fresh file in dir (os.TempDir when empty) and
// returns its path. The caller owns the file.
func WriteTempWAV(dir string, clip Clip) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, tempFilePrefix+shared.ShortID()+".wav")
	if err := WriteWAV(path, clip, TargetSampleRate); err != nil {
		return "", err
	}
	return path, nil
}

// ReadWAV loads a PCM WAV file. Only the first channel of multi-channel audio
// is kept.
func ReadWAV(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode wav: %w", err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	scale := float32(int(1) << (int(dec.BitDepth) - 1))
	samples := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float32(buf.Data[i])/scale)
	}
	return Clip{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}
