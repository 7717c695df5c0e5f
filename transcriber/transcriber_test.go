package transcriber

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediassist/fault"
)

func speechPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16((i%64)*200-6400)))
	}
	return buf
}

func TestNew(t *testing.T) {
	for _, tt := range []struct {
		provider, name string
	}{
		{"groq", "groq"},
		{"openai", "openai"},
		{"fake", "fake"},
	} {
		tr, err := New(Options{Provider: tt.provider, APIKey: "k"})
		if err != nil {
			t.Fatalf("New(%q): %v", tt.provider, err)
		}
		if tr.Name() != tt.name {
			t.Errorf("Name = %q, want %q", tr.Name(), tt.name)
		}
	}
	if _, err := New(Options{Provider: "acme"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestTranscribeFLACRejectsEmptyPCM(t *testing.T) {
	called := false
	_, err := transcribeFLAC(context.Background(), "x", nil, func(context.Context, []byte) (*Result, error) {
		called = true
		return &Result{}, nil
	})
	if !errors.Is(err, ErrNoAudio) || fault.KindOf(err) != fault.Rejection {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Error("upload called with no audio")
	}
}

func TestTranscribeFLACEmptyTextIsNoSpeech(t *testing.T) {
	_, err := transcribeFLAC(context.Background(), "x", speechPCM(1600), func(_ context.Context, flac []byte) (*Result, error) {
		if string(flac[:4]) != "fLaC" {
			t.Errorf("payload is not FLAC")
		}
		return &Result{Text: "   "}, nil
	})
	if !errors.Is(err, ErrNoSpeech) || fault.KindOf(err) != fault.Rejection {
		t.Fatalf("err = %v", err)
	}
}

func TestGroqTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if r.FormValue("model") != groqModel || r.FormValue("language") != "en" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "audio.flac" || !strings.HasPrefix(string(data), "fLaC") {
			t.Errorf("file %q does not look like FLAC", hdr.Filename)
		}
		w.Header().Set("x-ratelimit-remaining-requests", "99")
		w.Header().Set("x-ratelimit-limit-requests", "100")
		io.WriteString(w, `{"text":" Take two tablets. ","duration":1.2,"segments":[{"text":"Take two tablets.","no_speech_prob":0.1,"avg_logprob":-0.2}]}`)
	}))
	defer srv.Close()

	g := NewGroq(Options{APIKey: "secret", Language: "en", BaseURL: srv.URL, Timeout: 5 * time.Second})
	res, err := g.Transcribe(context.Background(), speechPCM(16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "Take two tablets." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.RateLimit != "99/100" {
		t.Errorf("RateLimit = %q", res.RateLimit)
	}
	if res.NoSpeechProb != 0.1 || len(res.Segments) != 1 {
		t.Errorf("segments = %+v", res.Segments)
	}
	if res.AudioSeconds != 1 || res.EncodedBytes == 0 {
		t.Errorf("AudioSeconds = %v EncodedBytes = %d", res.AudioSeconds, res.EncodedBytes)
	}
}

func TestGroqAPIErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Invalid API Key"}}`)
	}))
	defer srv.Close()

	g := NewGroq(Options{APIKey: "bad", BaseURL: srv.URL})
	_, err := g.Transcribe(context.Background(), speechPCM(1600))
	if fault.KindOf(err) != fault.Rejection {
		t.Fatalf("err = %v, want rejection", err)
	}
	if msg := fault.Message(err); msg != "Invalid API Key" {
		t.Errorf("message = %q", msg)
	}
}

func TestGroqUnreachableIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewGroq(Options{APIKey: "k", BaseURL: url, Timeout: time.Second})
	_, err := g.Transcribe(context.Background(), speechPCM(1600))
	if fault.KindOf(err) != fault.Transport {
		t.Fatalf("err = %v, want transport", err)
	}
}

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if r.FormValue("model") != openAIModel {
			t.Errorf("model = %q", r.FormValue("model"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"Blood pressure looks fine."}`)
	}))
	defer srv.Close()

	o := NewOpenAI(Options{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	res, err := o.Transcribe(context.Background(), speechPCM(8000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "Blood pressure looks fine." {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestOpenAIAPIErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"Audio file is too short","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	o := NewOpenAI(Options{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	_, err := o.Transcribe(context.Background(), speechPCM(8000))
	if fault.KindOf(err) != fault.Rejection {
		t.Fatalf("err = %v, want rejection", err)
	}
}

func TestFakeTranscriber(t *testing.T) {
	f := NewFake("hello", nil)
	res, err := f.Transcribe(context.Background(), []byte{1, 2})
	if err != nil || res.Text != "hello" {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if p := f.Payloads(); len(p) != 1 || len(p[0]) != 2 {
		t.Errorf("payloads = %v", p)
	}

	if _, err := NewFake("", nil).Transcribe(context.Background(), nil); !errors.Is(err, ErrNoSpeech) {
		t.Errorf("empty text err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFake("x", nil).WithDelay(time.Hour).Transcribe(ctx, nil)
	if fault.KindOf(err) != fault.Transport {
		t.Errorf("cancelled err = %v", err)
	}
}
