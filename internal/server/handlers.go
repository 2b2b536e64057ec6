package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/codec"
	"github.com/n0madic/go-llmbridge/internal/config"
	"github.com/n0madic/go-llmbridge/internal/engine"
	"github.com/n0madic/go-llmbridge/internal/sse"
	"github.com/n0madic/go-llmbridge/internal/stream"
	"github.com/n0madic/go-llmbridge/internal/types"
	"github.com/n0madic/go-llmbridge/internal/upstream"
)

// HeaderTraceID names the trace of a transformed request.
const HeaderTraceID = "X-Llmbridge-Trace-Id"

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			codec.WriteAnthropicError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
			return nil, false
		}
		codec.WriteAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "Failed to read request body")
		return nil, false
	}
	return body, true
}

// upstreamPath removes the supplier routing prefix from an inbound path.
func upstreamPath(sup *config.Supplier, path string) string {
	for _, p := range sup.PathPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return "/" + strings.TrimLeft(path[len(p):], "/")
		}
	}
	return path
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	sup, ok := s.Suppliers.Select(r.URL.Path)
	if !ok {
		codec.WriteAnthropicError(w, http.StatusServiceUnavailable, "api_error", "no supplier configured")
		return
	}
	clientStream := gjson.GetBytes(body, "stream").Bool()

	res, err := s.Engine.Transform(ctx, engine.Request{
		Supplier: sup,
		Method:   r.Method,
		Path:     upstreamPath(sup, r.URL.Path),
		Headers:  r.Header,
		Body:     body,
		Stream:   clientStream,
	})
	if res != nil && res.Trace != nil {
		s.Traces.Add(res.Trace)
		if s.Traces != nil {
			w.Header().Set(HeaderTraceID, res.Trace.ID)
		}
	}
	if err != nil {
		codec.WriteEngineError(w, err)
		return
	}

	if sup.OAuth != nil && res.NeedsResponseTransform {
		value, err := s.Credentials.Authorization(sup.Name, sup.OAuth)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("supplier", sup.Name).Msg("supplier token request failed")
			codec.WriteAnthropicError(w, http.StatusBadGateway, "api_error", err.Error())
			return
		}
		res.Headers.Set("Authorization", value)
	}

	resp, err := s.Upstream.Do(ctx, upstream.Request{
		Method:  res.Method,
		URL:     upstream.JoinURL(sup.BaseURL, res.Path),
		Headers: res.Headers,
		Body:    res.Body,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("supplier", sup.Name).Msg("upstream request failed")
		codec.WriteAnthropicError(w, http.StatusBadGateway, "api_error", err.Error())
		return
	}
	defer resp.Body.Close()
	if snap := s.Limits.Record(sup.Name, resp.Header); snap != nil {
		log.Ctx(ctx).Debug().Str("supplier", sup.Name).Interface("rate_limits", snap).Msg("upstream rate limits")
	}

	if !res.NeedsResponseTransform {
		proxyResponse(w, resp)
		return
	}
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		codec.WriteAnthropicError(w, resp.StatusCode, upstream.ErrorType(resp.StatusCode),
			upstream.ErrorMessage(resp.StatusCode, raw, resp.Header))
		return
	}

	if clientStream {
		s.streamMessages(w, r, sup, res, resp)
		return
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		codec.WriteAnthropicError(w, http.StatusBadGateway, "api_error", "failed to read upstream response")
		return
	}
	out, err := s.Engine.TransformResponse(sup, res.Model, raw, resp.Header.Get("Content-Type"), res.ShortNameMap)
	if err != nil {
		codec.WriteEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// streamMessages relays the upstream event stream as Messages events.
func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request, sup *config.Supplier, res *engine.Result, resp *http.Response) {
	ctx := r.Context()
	col := audit.New()
	tr := s.Engine.NewStream(sup, res.Model, sse.Options{
		ShortNames:           res.ShortNameMap,
		EstimatedInputTokens: res.EstimatedInputTokens,
		Audit:                col,
	})
	if tr == nil {
		proxyResponse(w, resp)
		return
	}

	codec.WriteStreamHeaders(w, http.StatusOK)
	flusher, _ := w.(http.Flusher)
	write := func(result sse.Result) bool {
		if len(result.Events) == 0 {
			return true
		}
		if _, err := w.Write(sse.EncodeAll(result.Events)); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	reader := stream.NewReader(resp.Body)
	for {
		if ctx.Err() != nil {
			tr.Abort()
			return
		}
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			write(tr.Finalize())
			break
		}
		if err != nil {
			// Only a clean end of input is finalized; a cut stream gets no stop.
			log.Ctx(ctx).Warn().Err(err).Str("supplier", sup.Name).Msg("upstream stream ended abnormally")
			tr.Abort()
			return
		}
		result := tr.Push(ev)
		if !write(result) {
			tr.Abort()
			return
		}
		if result.StreamEnd {
			break
		}
	}

	col.Finalize()
	if meta := col.Audit().Metadata; len(meta) > 0 {
		log.Ctx(ctx).Debug().Interface("stream_audit", meta).Str("chain", res.Chain).Msg("stream finished")
	}
}

// proxyResponse copies an upstream response unchanged, flushing as it goes.
func proxyResponse(w http.ResponseWriter, resp *http.Response) {
	for _, key := range []string{"Content-Type", "Cache-Control", "Request-Id", "X-Request-Id"} {
		if v := resp.Header.Get(key); v != "" {
			w.Header().Set(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := (&codec.AnthropicDecoder{}).Decode(body, nil)
	if err != nil {
		codec.WriteEngineError(w, err)
		return
	}
	codec.WriteJSON(w, http.StatusOK, types.AnthropicCountTokensResponse{InputTokens: s.Estimator.EstimateRequest(req)})
}
