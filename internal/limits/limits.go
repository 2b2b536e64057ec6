// Package limits records the rate-limit state upstreams report in response
// headers, keyed by supplier.
package limits

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Window is one usage window reported by a Codex upstream.
type Window struct {
	UsedPercent     float64 `json:"used_percent"`
	WindowMinutes   *int    `json:"window_minutes,omitempty"`
	ResetsInSeconds *int    `json:"resets_in_seconds,omitempty"`
}

// Snapshot is the rate-limit state seen on one upstream response.
type Snapshot struct {
	CapturedAt time.Time `json:"captured_at"`
	Primary    *Window   `json:"primary,omitempty"`
	Secondary  *Window   `json:"secondary,omitempty"`

	RemainingRequests *int `json:"remaining_requests,omitempty"`
	RemainingTokens   *int `json:"remaining_tokens,omitempty"`
	// RetryAfterSeconds is set on throttled responses.
	RetryAfterSeconds *int `json:"retry_after_seconds,omitempty"`
}

// ParseHeaders extracts rate-limit information from upstream response
// headers. It understands the Codex usage-window headers and the common
// x-ratelimit-remaining-* and retry-after headers. Returns nil when none are
// present.
func ParseHeaders(headers http.Header, now time.Time) *Snapshot {
	s := &Snapshot{
		CapturedAt: now.UTC(),
		Primary: parseWindow(headers,
			"x-codex-primary-used-percent",
			"x-codex-primary-window-minutes",
			"x-codex-primary-reset-after-seconds",
		),
		Secondary: parseWindow(headers,
			"x-codex-secondary-used-percent",
			"x-codex-secondary-window-minutes",
			"x-codex-secondary-reset-after-seconds",
		),
		RemainingRequests: headerInt(headers, "x-ratelimit-remaining-requests"),
		RemainingTokens:   headerInt(headers, "x-ratelimit-remaining-tokens"),
		RetryAfterSeconds: headerInt(headers, "retry-after"),
	}
	if s.Primary == nil && s.Secondary == nil && s.RemainingRequests == nil &&
		s.RemainingTokens == nil && s.RetryAfterSeconds == nil {
		return nil
	}
	return s
}

func parseWindow(headers http.Header, usedKey, windowKey, resetKey string) *Window {
	usedStr := strings.TrimSpace(headers.Get(usedKey))
	if usedStr == "" {
		return nil
	}
	used, err := strconv.ParseFloat(usedStr, 64)
	if err != nil || math.IsNaN(used) || math.IsInf(used, 0) {
		return nil
	}
	return &Window{
		UsedPercent:     used,
		WindowMinutes:   headerInt(headers, windowKey),
		ResetsInSeconds: headerInt(headers, resetKey),
	}
}

func headerInt(headers http.Header, key string) *int {
	v := strings.TrimSpace(headers.Get(key))
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &i
}

// ResetAt returns when w resets relative to the capture time, nil when the
// upstream did not say.
func (s *Snapshot) ResetAt(w *Window) *time.Time {
	if s == nil || w == nil || w.ResetsInSeconds == nil {
		return nil
	}
	t := s.CapturedAt.Add(time.Duration(*w.ResetsInSeconds) * time.Second)
	return &t
}

// Tracker keeps the latest snapshot per supplier. The zero value is ready
// to use and safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]*Snapshot
}

// Record parses headers and stores the result for supplier. Responses
// without rate-limit headers leave the previous snapshot in place.
func (t *Tracker) Record(supplier string, headers http.Header) *Snapshot {
	if t == nil || headers == nil {
		return nil
	}
	s := ParseHeaders(headers, time.Now())
	if s == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		t.last = make(map[string]*Snapshot)
	}
	t.last[supplier] = s
	return s
}

// Get returns the latest snapshot for supplier.
func (t *Tracker) Get(supplier string) (*Snapshot, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.last[supplier]
	return s, ok
}
