package encoder

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// flacWriter writes a mono 16-bit FLAC stream one block at a time.
type flacWriter struct {
	enc     *flac.Encoder
	written uint64
}

// newFlacWriter starts a stream whose header declares total samples; pass 0
// when the length is unknown.
func newFlacWriter(w io.Writer, total uint64) (*flacWriter, error) {
	enc, err := flac.NewEncoder(w, &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
		NSamples:      total,
	})
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	return &flacWriter{enc: enc}, nil
}

func (w *flacWriter) writeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	wide := make([]int32, len(block))
	for i, s := range block {
		wide[i] = int32(s)
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   wide,
			NSamples:  len(block),
		}},
	}
	if err := w.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	w.written += uint64(len(block))
	return nil
}

func (w *flacWriter) close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("closing flac stream: %w", err)
	}
	return nil
}
