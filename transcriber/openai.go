package transcriber

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"mediassist/fault"
)

const openAIModel = "gpt-4o-transcribe"

type OpenAI struct {
	client openai.Client
	model  string
	lang   string
}

func NewOpenAI(opts Options) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(1),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}))
	}
	o := &OpenAI{client: openai.NewClient(reqOpts...), model: openAIModel, lang: opts.Language}
	if opts.Model != "" {
		o.model = opts.Model
	}
	return o
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, pcm []byte) (*Result, error) {
	return transcribeFLAC(ctx, o.Name(), pcm, o.upload)
}

func (o *OpenAI) upload(ctx context.Context, flac []byte) (*Result, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(flac), "audio.flac", "audio/flac"),
		Model: openai.AudioModel(o.model),
	}
	if o.lang != "" {
		params.Language = openai.String(o.lang)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.Message != "" {
				return nil, fault.Newf(fault.Rejection, "openai", err, "%s", apiErr.Message)
			}
			return nil, fault.New(fault.Rejection, "openai", err)
		}
		return nil, fault.New(fault.Transport, "openai", err)
	}
	return &Result{Text: resp.Text}, nil
}
