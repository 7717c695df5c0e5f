package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"mediassist/fault"
	"mediassist/nettrace"
)

const (
	groqURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	groqModel = "whisper-large-v3-turbo"
)

type Groq struct {
	client *nettrace.Client
	apiURL string
	apiKey string
	model  string
	lang   string
}

func NewGroq(opts Options) *Groq {
	g := &Groq{
		client: nettrace.New(opts.Timeout),
		apiURL: groqURL,
		apiKey: opts.APIKey,
		model:  groqModel,
		lang:   opts.Language,
	}
	if opts.BaseURL != "" {
		g.apiURL = opts.BaseURL
	}
	if opts.Model != "" {
		g.model = opts.Model
	}
	return g
}

func (g *Groq) Name() string { return "groq" }

// Warm opens a connection ahead of the first upload.
func (g *Groq) Warm() time.Duration { return g.client.Warm(g.apiURL) }

func (g *Groq) Transcribe(ctx context.Context, pcm []byte) (*Result, error) {
	return transcribeFLAC(ctx, g.Name(), pcm, g.upload)
}

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text         string  `json:"text"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		NoSpeechProb float64 `json:"no_speech_prob"`
		AvgLogProb   float64 `json:"avg_logprob"`
	} `json:"segments"`
}

type groqError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Groq) upload(ctx context.Context, flac []byte) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(flac); err != nil {
		return nil, err
	}
	writer.WriteField("model", g.model)
	writer.WriteField("response_format", "verbose_json")
	if g.lang != "" {
		writer.WriteField("language", g.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fault.New(fault.Transport, "groq", err)
	}
	if !resp.OK() {
		var ge groqError
		_ = json.Unmarshal(resp.Body, &ge)
		if ge.Error.Message == "" {
			return nil, fault.New(fault.Rejection, "groq", fmt.Errorf("API error %d", resp.StatusCode))
		}
		return nil, fault.Newf(fault.Rejection, "groq", fmt.Errorf("API error %d", resp.StatusCode), "%s", ge.Error.Message)
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fault.New(fault.Rejection, "groq", fmt.Errorf("response parse error: %w", err))
	}

	res := &Result{
		Text:      gResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: nettrace.FirstHeader(resp.Header, "x-ratelimit-remaining-requests") + "/" + nettrace.FirstHeader(resp.Header, "x-ratelimit-limit-requests"),
		Duration:  gResp.Duration,
	}
	if len(gResp.Segments) > 0 {
		var logProbSum float64
		for _, seg := range gResp.Segments {
			res.NoSpeechProb = max(res.NoSpeechProb, seg.NoSpeechProb)
			logProbSum += seg.AvgLogProb
			res.Segments = append(res.Segments, Segment{
				Text:         seg.Text,
				NoSpeechProb: seg.NoSpeechProb,
				AvgLogProb:   seg.AvgLogProb,
				Start:        seg.Start,
				End:          seg.End,
			})
		}
		res.AvgLogProb = logProbSum / float64(len(gResp.Segments))
	}
	return res, nil
}
