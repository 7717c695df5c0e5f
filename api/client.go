// Package api is the HTTP client for the MediAssist backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediassist/fault"
	"mediassist/log"
	"mediassist/nettrace"
)

type Client struct {
	http   *nettrace.Client
	base   string
	userID string
}

func New(baseURL, userID string, timeout time.Duration) *Client {
	return &Client{
		http:   nettrace.New(timeout),
		base:   strings.TrimRight(baseURL, "/"),
		userID: userID,
	}
}

func (c *Client) BaseURL() string { return c.base }

// errorBody covers the fields the backend uses to explain a refusal.
type errorBody struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e errorBody) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base + "/" + strings.Join(escaped, "/")
}

// do sends the request and classifies failures: no response is
// fault.Transport, a non-2xx status or success:false is fault.Rejection
// carrying the server's explanation.
func (c *Client) do(req *http.Request, op string) (*nettrace.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debugf("%s %s failed: %v", req.Method, req.URL.Path, err)
		return nil, fault.New(fault.Transport, op, err)
	}

	var eb errorBody
	if json.Unmarshal(resp.Body, &eb) != nil {
		eb = errorBody{}
	}
	if !resp.OK() || (eb.Success != nil && !*eb.Success) {
		log.Debugf("%s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, resp.Metrics)
		cause := fmt.Errorf("status %d", resp.StatusCode)
		if msg := eb.text(); msg != "" {
			return nil, fault.Newf(fault.Rejection, op, cause, "%s", msg)
		}
		return nil, fault.New(fault.Rejection, op, cause)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, op string, out any, parts ...string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(parts...), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.do(req, op)
	if err != nil {
		return err
	}
	return decode(op, resp.Body, out)
}

func (c *Client) sendJSON(ctx context.Context, method, op string, body, out any, parts ...string) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(parts...), r)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.do(req, op)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(op, resp.Body, out)
}

func decode(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fault.New(fault.Rejection, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// StartResult is the accepted deep-analysis job.
type StartResult struct {
	AnalysisID string `json:"analysis_id"`
	FileCount  int    `json:"file_count"`
	Message    string `json:"message"`
}

func (c *Client) StartAnalysis(ctx context.Context) (*StartResult, error) {
	var out StartResult
	if err := c.sendJSON(ctx, http.MethodPost, "start analysis", nil, &out, "deep_analysis"); err != nil {
		return nil, err
	}
	return &out, nil
}

type StatusResult struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (c *Client) AnalysisStatus(ctx context.Context, id string) (*StatusResult, error) {
	var out StatusResult
	if err := c.getJSON(ctx, "analysis status", &out, "analysis_status", id); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts a chat message and returns the assistant's reply.
func (c *Client) SendMessage(ctx context.Context, text string) (string, error) {
	body := struct {
		Message string `json:"message"`
		UserID  string `json:"userId"`
	}{text, c.userID}
	var out struct {
		Response string `json:"response"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "send message", body, &out, "send_message"); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Ping checks that the backend answers at all; any HTTP status counts.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("medical_reports"), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fault.New(fault.Transport, "ping", err)
	}
	return resp.Metrics.Total, nil
}

func uploadBody(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &body, w.FormDataContentType(), nil
}
