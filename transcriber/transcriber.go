// Package transcriber turns captured PCM into text via a speech-to-text
// provider.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediassist/encoder"
	"mediassist/fault"
	"mediassist/log"
	"mediassist/nettrace"
)

var (
	ErrNoAudio  = errors.New("no audio captured")
	ErrNoSpeech = errors.New("no speech detected")
)

type Segment struct {
	Text         string
	NoSpeechProb float64
	AvgLogProb   float64
	Start        float64
	End          float64
}

type Result struct {
	Text         string
	Metrics      *nettrace.Metrics
	RateLimit    string
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64
	Segments     []Segment

	AudioSeconds float64
	EncodedBytes int
}

// Transcriber converts one utterance of 16 kHz mono s16le PCM to text.
// Failures are classified as fault.Transport or fault.Rejection.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, pcm []byte) (*Result, error)
}

type Options struct {
	Provider string
	APIKey   string
	Model    string
	Language string
	BaseURL  string
	Timeout  time.Duration
	FakeText string
}

func New(opts Options) (Transcriber, error) {
	switch opts.Provider {
	case "groq":
		return NewGroq(opts), nil
	case "openai":
		return NewOpenAI(opts), nil
	case "fake":
		text := opts.FakeText
		if text == "" {
			text = "hello from the fake transcriber"
		}
		return NewFake(text, nil), nil
	}
	return nil, fmt.Errorf("unknown transcription provider %q", opts.Provider)
}

type uploadFunc func(ctx context.Context, flac []byte) (*Result, error)

// transcribeFLAC encodes pcm, hands it to upload and normalises the text.
func transcribeFLAC(ctx context.Context, provider string, pcm []byte, upload uploadFunc) (*Result, error) {
	if len(pcm) < 2 {
		return nil, fault.New(fault.Rejection, provider, ErrNoAudio)
	}
	enc, err := encoder.EncodeFLAC(pcm)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", provider, err)
	}

	start := time.Now()
	res, err := upload(ctx, enc.Data)
	if err != nil {
		return nil, err
	}
	res.Text = strings.TrimSpace(res.Text)
	res.AudioSeconds = enc.Duration().Seconds()
	res.EncodedBytes = len(enc.Data)

	log.TranscriptionMetrics(provider, float64(len(pcm))/1024, float64(len(enc.Data))/1024, time.Since(start))
	if res.Text == "" {
		return nil, fault.New(fault.Rejection, provider, ErrNoSpeech)
	}
	return res, nil
}
