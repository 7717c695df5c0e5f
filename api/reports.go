package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"mediassist/fault"
)

// Report is one uploaded medical document.
type Report struct {
	ID         string `json:"_id"`
	Filename   string `json:"filename"`
	UploadDate string `json:"uploadDate"`
}

// Uploaded parses UploadDate, returning the zero time when it is missing or
// in an unknown layout.
func (r Report) Uploaded() time.Time {
	return parseTime(r.UploadDate)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (c *Client) ListReports(ctx context.Context) ([]Report, error) {
	var out struct {
		Reports []Report `json:"reports"`
	}
	if err := c.getJSON(ctx, "list reports", &out, "medical_reports"); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

// UploadReport sends a local file as multipart field "file". The backend's
// echo of the stored record is returned when it sends one.
func (c *Client) UploadReport(ctx context.Context, path string) (*Report, error) {
	body, contentType, err := uploadBody(path)
	if err != nil {
		return nil, fault.New(fault.Precondition, "upload report", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload_medical_report"), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req, "upload report")
	if err != nil {
		return nil, err
	}
	rep := &Report{Filename: filepath.Base(path)}
	var echo struct {
		Report
		Data *Report `json:"report"`
	}
	if json.Unmarshal(resp.Body, &echo) == nil {
		switch {
		case echo.Data != nil && echo.Data.ID != "":
			rep = echo.Data
		case echo.ID != "":
			rep = &echo.Report
		}
	}
	return rep, nil
}

// DownloadReport returns the raw document bytes and the server's suggested
// filename, if any.
func (c *Client) DownloadReport(ctx context.Context, id string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("download_medical_report", id), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.do(req, "download report")
	if err != nil {
		return nil, "", err
	}
	return resp.Body, dispositionFilename(resp.Header.Get("Content-Disposition")), nil
}

func dispositionFilename(h string) string {
	for _, part := range strings.Split(h, ";") {
		part = strings.TrimSpace(part)
		if name, ok := strings.CutPrefix(part, "filename="); ok {
			return filepath.Base(strings.Trim(name, `"`))
		}
	}
	return ""
}

func (c *Client) DeleteReport(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "delete report", nil, nil, "delete_medical_report", id)
}

// AnalysisSummary is one finished deep analysis in the results list.
type AnalysisSummary struct {
	ReportID  string `json:"report_id"`
	Timestamp string `json:"timestamp"`
	FileCount int    `json:"file_count"`
}

func (a AnalysisSummary) Time() time.Time { return parseTime(a.Timestamp) }

type AnalysisReport struct {
	Timestamp string          `json:"timestamp"`
	Filenames []string        `json:"filenames"`
	Content   json.RawMessage `json:"content"`
}

// Text renders Content for a terminal: strings as-is, structured content
// as indented JSON.
func (r *AnalysisReport) Text() string {
	if len(r.Content) == 0 || string(r.Content) == "null" {
		return "(no content)"
	}
	var s string
	if json.Unmarshal(r.Content, &s) == nil {
		return s
	}
	var v any
	if json.Unmarshal(r.Content, &v) != nil {
		return string(r.Content)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(r.Content)
	}
	return string(out)
}

func (c *Client) AnalysisReports(ctx context.Context) ([]AnalysisSummary, error) {
	var out struct {
		Reports []AnalysisSummary `json:"reports"`
	}
	if err := c.getJSON(ctx, "list analyses", &out, "analysis_reports"); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

func (c *Client) AnalysisReport(ctx context.Context, id string) (*AnalysisReport, error) {
	var out struct {
		Report *AnalysisReport `json:"report"`
	}
	if err := c.getJSON(ctx, "get analysis", &out, "analysis_report", id); err != nil {
		return nil, err
	}
	if out.Report == nil {
		return nil, fault.New(fault.Rejection, "get analysis", fmt.Errorf("report %s has no content", id))
	}
	return out.Report, nil
}
