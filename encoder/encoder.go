// Package encoder compresses captured 16 kHz mono PCM into FLAC before upload.
package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Result is an encoded payload plus the numbers logged with each transcription.
type Result struct {
	Data       []byte
	Frames     uint64
	EncodeTime time.Duration
}

// Duration is the audio length represented by the encoded frames.
func (r *Result) Duration() time.Duration {
	return time.Duration(r.Frames) * time.Second / SampleRate
}

// EncodeFLAC encodes little-endian s16 PCM into a complete FLAC stream.
// An odd trailing byte is dropped.
func EncodeFLAC(pcm []byte) (*Result, error) {
	start := time.Now()
	samples := Samples(pcm)

	var buf bytes.Buffer
	w, err := newFlacWriter(&buf, uint64(len(samples)))
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := w.writeBlock(samples[i:end]); err != nil {
			return nil, fmt.Errorf("block at sample %d: %w", i, err)
		}
	}
	if err := w.close(); err != nil {
		return nil, err
	}
	return &Result{Data: buf.Bytes(), Frames: w.written, EncodeTime: time.Since(start)}, nil
}

// Samples reinterprets little-endian s16 PCM bytes as samples.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
