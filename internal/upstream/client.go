// Package upstream sends transformed requests to supplier endpoints.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds one upstream exchange, streaming included.
const DefaultTimeout = 10 * time.Minute

// Request is a fully prepared upstream request.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Client makes single-attempt upstream calls. Retries belong to the caller.
type Client struct {
	HTTP  *http.Client
	Debug bool

	dumpMu sync.Mutex
}

// NewClient creates a client with the given overall timeout.
func NewClient(timeout time.Duration, debug bool) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}, Debug: debug}
}

// JoinURL appends path to baseURL without doubling a shared /v1 segment.
func JoinURL(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if strings.HasSuffix(base, "/v1") && strings.HasPrefix(path, "/v1/") {
		path = path[len("/v1"):]
	}
	return base + path
}

// Do sends req. The caller owns the response body.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	c.dumpRequest(httpReq)

	start := time.Now()
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request to %s failed: %w", httpReq.URL.Host, err)
	}
	log.Ctx(ctx).Debug().
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Str("upstream_request_id", RequestID(resp.Header)).
		Dur("duration", time.Since(start)).
		Msg("upstream response")
	c.dumpResponse(resp)
	return resp, nil
}

// RequestID returns the first request id header an upstream reported.
func RequestID(headers http.Header) string {
	for _, key := range []string{"x-request-id", "x-openai-request-id", "x-oai-request-id", "request-id", "x-goog-request-id", "cf-ray"} {
		if v := strings.TrimSpace(headers.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) dumpRequest(req *http.Request) {
	if !c.Debug {
		return
	}
	dump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		log.Error().Err(err).Msg("upstream request dump failed")
		return
	}
	c.writeDumpBlock("UPSTREAM REQUEST", dump)
}

// dumpResponse writes headers only; bodies may be long-lived streams.
func (c *Client) dumpResponse(resp *http.Response) {
	if !c.Debug {
		return
	}
	dump, err := httputil.DumpResponse(resp, false)
	if err != nil {
		log.Error().Err(err).Msg("upstream response dump failed")
		return
	}
	c.writeDumpBlock(fmt.Sprintf("UPSTREAM RESPONSE status=%d", resp.StatusCode), dump)
}

func (c *Client) writeDumpBlock(title string, data []byte) {
	c.dumpMu.Lock()
	defer c.dumpMu.Unlock()
	fmt.Fprintf(os.Stderr, "===== %s BEGIN =====\n", title)
	os.Stderr.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		os.Stderr.WriteString("\n")
	}
	fmt.Fprintf(os.Stderr, "===== %s END =====\n", title)
}
