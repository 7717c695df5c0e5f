// Package nettrace wraps http.Client with per-request phase timings.
package nettrace

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"
)

type Metrics struct {
	DNS        time.Duration
	ConnWait   time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ReqHeaders time.Duration
	ReqBody    time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration
	ConnReused bool
}

func (m *Metrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

// String lists the non-zero phases in milliseconds, for log lines.
func (m *Metrics) String() string {
	var b strings.Builder
	for _, p := range []struct {
		name string
		d    time.Duration
	}{
		{"dns", m.DNS}, {"tcp", m.TCP}, {"tls", m.TLS},
		{"ttfb", m.TTFB}, {"download", m.Download}, {"total", m.Total},
	} {
		if p.d > 0 {
			fmt.Fprintf(&b, "%s=%dms ", p.name, p.d.Milliseconds())
		}
	}
	if m.ConnReused {
		b.WriteString("conn=reused")
	} else {
		b.WriteString("conn=new")
	}
	return b.String()
}

type Client struct {
	client *http.Client
}

func New(timeout time.Duration) *Client {
	return &Client{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type Response struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *Metrics
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// clock stamps each phase boundary as the trace hooks fire. The hooks run
// on the transport's read and write loops, so every field is guarded by mu.
type clock struct {
	mu sync.Mutex
	m  Metrics

	getConn, dns, tcp, tls          time.Time
	gotConn, headers, sent, firstBy time.Time
}

// stamp runs f under the clock's lock.
func (c *clock) stamp(f func(now time.Time)) {
	now := time.Now()
	c.mu.Lock()
	f(now)
	c.mu.Unlock()
}

func (c *clock) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { c.stamp(func(now time.Time) { c.getConn = now }) },
		GotConn: func(info httptrace.GotConnInfo) {
			c.stamp(func(now time.Time) {
				c.gotConn = now
				c.m.ConnWait = now.Sub(c.getConn)
				c.m.ConnReused = info.Reused
			})
		},
		DNSStart: func(httptrace.DNSStartInfo) { c.stamp(func(now time.Time) { c.dns = now }) },
		DNSDone:  func(httptrace.DNSDoneInfo) { c.stamp(func(now time.Time) { c.m.DNS = now.Sub(c.dns) }) },
		ConnectStart: func(string, string) {
			c.stamp(func(now time.Time) { c.tcp = now })
		},
		ConnectDone: func(string, string, error) {
			c.stamp(func(now time.Time) { c.m.TCP = now.Sub(c.tcp) })
		},
		TLSHandshakeStart: func() { c.stamp(func(now time.Time) { c.tls = now }) },
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			c.stamp(func(now time.Time) { c.m.TLS = now.Sub(c.tls) })
		},
		WroteHeaders: func() {
			c.stamp(func(now time.Time) {
				c.headers = now
				c.m.ReqHeaders = now.Sub(c.gotConn)
			})
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			c.stamp(func(now time.Time) {
				c.sent = now
				c.m.ReqBody = now.Sub(c.headers)
			})
		},
		GotFirstResponseByte: func() {
			c.stamp(func(now time.Time) {
				c.firstBy = now
				c.m.TTFB = now.Sub(c.sent)
			})
		},
	}
}

// finish closes out the download and total phases and returns a copy of the
// metrics, so later hook calls cannot touch what the caller holds.
func (c *clock) finish(start time.Time) *Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if !c.firstBy.IsZero() {
		c.m.Download = now.Sub(c.firstBy)
	}
	c.m.Total = now.Sub(start)
	m := c.m
	return &m
}

// Do sends req and reads the whole body. The request's context governs
// cancellation.
func (c *Client) Do(req *http.Request) (*Response, error) {
	clk := &clock{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), clk.trace()))
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Body: body, StatusCode: resp.StatusCode, Header: resp.Header, Metrics: clk.finish(start)}, nil
}

// Warm opens a connection to url ahead of the first real request and
// returns the TLS handshake time.
func (c *Client) Warm(url string) time.Duration {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return 0
	}
	clk := &clock{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), clk.trace()))
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return clk.finish(start).TLS
}

// FirstHeader returns the first non-empty header value among keys, or "?".
func FirstHeader(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}
