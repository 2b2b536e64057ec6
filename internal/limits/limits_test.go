package limits

import (
	"net/http"
	"sync"
	"testing"
	"time"
)

func makeHeaders(pairs ...string) http.Header {
	h := make(http.Header)
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

var captured = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// TestParseHeadersBothWindows verifies that both Codex windows are parsed.
func TestParseHeadersBothWindows(t *testing.T) {
	h := makeHeaders(
		"x-codex-primary-used-percent", "42.5",
		"x-codex-primary-window-minutes", "60",
		"x-codex-primary-reset-after-seconds", "3600",
		"x-codex-secondary-used-percent", "10.0",
		"x-codex-secondary-window-minutes", "1440",
		"x-codex-secondary-reset-after-seconds", "86400",
	)

	snap := ParseHeaders(h, captured)
	if snap == nil || snap.Primary == nil || snap.Secondary == nil {
		t.Fatalf("expected both windows, got %+v", snap)
	}
	if snap.Primary.UsedPercent != 42.5 {
		t.Errorf("primary used percent: got %v, want 42.5", snap.Primary.UsedPercent)
	}
	if snap.Secondary.UsedPercent != 10.0 {
		t.Errorf("secondary used percent: got %v, want 10.0", snap.Secondary.UsedPercent)
	}
	if snap.Primary.WindowMinutes == nil || *snap.Primary.WindowMinutes != 60 {
		t.Errorf("primary window minutes: got %v, want 60", snap.Primary.WindowMinutes)
	}
	if !snap.CapturedAt.Equal(captured) {
		t.Errorf("captured at: got %v, want %v", snap.CapturedAt, captured)
	}
}

func TestParseHeadersRemaining(t *testing.T) {
	h := makeHeaders(
		"x-ratelimit-remaining-requests", "99",
		"x-ratelimit-remaining-tokens", "12000",
		"retry-after", "7",
	)

	snap := ParseHeaders(h, captured)
	if snap == nil {
		t.Fatal("expected non-nil snapshot")
	}
	if snap.Primary != nil {
		t.Errorf("expected no Codex window, got %+v", snap.Primary)
	}
	if snap.RemainingRequests == nil || *snap.RemainingRequests != 99 {
		t.Errorf("remaining requests: got %v, want 99", snap.RemainingRequests)
	}
	if snap.RemainingTokens == nil || *snap.RemainingTokens != 12000 {
		t.Errorf("remaining tokens: got %v, want 12000", snap.RemainingTokens)
	}
	if snap.RetryAfterSeconds == nil || *snap.RetryAfterSeconds != 7 {
		t.Errorf("retry after: got %v, want 7", snap.RetryAfterSeconds)
	}
}

func TestParseHeadersRejected(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
	}{
		{"none present", makeHeaders("Content-Type", "application/json")},
		{"invalid float", makeHeaders("x-codex-primary-used-percent", "not-a-number")},
		{"NaN", makeHeaders("x-codex-primary-used-percent", "NaN")},
		{"Inf", makeHeaders("x-codex-primary-used-percent", "+Inf")},
		{"http date retry-after", makeHeaders("retry-after", "Wed, 21 Oct 2015 07:28:00 GMT")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if snap := ParseHeaders(tt.headers, captured); snap != nil {
				t.Errorf("expected nil snapshot, got %+v", snap)
			}
		})
	}
}

func TestResetAt(t *testing.T) {
	rs := 120
	snap := &Snapshot{CapturedAt: captured, Primary: &Window{ResetsInSeconds: &rs}}

	resetAt := snap.ResetAt(snap.Primary)
	if resetAt == nil || !resetAt.Equal(captured.Add(120*time.Second)) {
		t.Errorf("reset time: got %v, want %v", resetAt, captured.Add(120*time.Second))
	}
	if got := snap.ResetAt(nil); got != nil {
		t.Errorf("expected nil for nil window, got %v", got)
	}
	if got := snap.ResetAt(&Window{UsedPercent: 50}); got != nil {
		t.Errorf("expected nil when ResetsInSeconds is nil, got %v", got)
	}
}

func TestTrackerRecord(t *testing.T) {
	var tr Tracker

	if tr.Record("codex", makeHeaders("Content-Type", "text/event-stream")) != nil {
		t.Fatal("headers without limits should not record")
	}
	if _, ok := tr.Get("codex"); ok {
		t.Fatal("nothing should be stored yet")
	}

	tr.Record("codex", makeHeaders("x-codex-primary-used-percent", "12"))
	tr.Record("codex", makeHeaders("Content-Type", "application/json"))

	snap, ok := tr.Get("codex")
	if !ok || snap.Primary == nil || snap.Primary.UsedPercent != 12 {
		t.Fatalf("expected last snapshot to survive, got %+v", snap)
	}
	if _, ok := tr.Get("other"); ok {
		t.Error("unexpected snapshot for another supplier")
	}

	var nilTracker *Tracker
	if nilTracker.Record("x", makeHeaders("retry-after", "1")) != nil {
		t.Error("nil tracker should ignore records")
	}
}

func TestTrackerConcurrent(t *testing.T) {
	var tr Tracker
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("codex", makeHeaders("x-ratelimit-remaining-requests", "5"))
			tr.Get("codex")
		}()
	}
	wg.Wait()
	if _, ok := tr.Get("codex"); !ok {
		t.Fatal("expected a snapshot after concurrent records")
	}
}
