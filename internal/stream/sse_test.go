package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/star/gnssviz/internal/ephemeris"
	"github.com/star/gnssviz/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

const testFeed = `[
  {
    "OBJECT_NAME": "GPS BIII-1 (PRN 04)",
    "NORAD_CAT_ID": 43873,
    "EPOCH": "2024-001.50000000",
    "MEAN_MOTION": 2.00565,
    "ECCENTRICITY": 0.001,
    "INCLINATION": 55.0,
    "RA_OF_ASC_NODE": 120.0,
    "ARG_OF_PERICENTER": 45.0,
    "MEAN_ANOMALY": 10.0
  }
]`

func testSession(t *testing.T) *session.Session {
	t.Helper()
	store := ephemeris.NewStore(testLogger())
	if _, err := store.Load([]byte(testFeed)); err != nil {
		t.Fatalf("loading test feed: %v", err)
	}
	sess := session.New(store)
	sess.SetSimEpoch(1704110400)
	return sess
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
		TickInterval:       time.Second,
		DOPMaskDeg:         5,
	}
}

// TestMetadataMessageJSON verifies the metadata message format.
func TestMetadataMessageJSON(t *testing.T) {
	msg := metadataMessage{
		Type:                "metadata",
		Satellites:          31,
		EphemerisAgeSeconds: 1800,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if parsed["type"] != "metadata" {
		t.Errorf("type = %v, want metadata", parsed["type"])
	}
	if parsed["satellites"].(float64) != 31 {
		t.Errorf("satellites = %v, want 31", parsed["satellites"])
	}
	if parsed["ephemeris_age_seconds"].(float64) != 1800 {
		t.Errorf("ephemeris_age_seconds = %v, want 1800", parsed["ephemeris_age_seconds"])
	}
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	handler := NewHandler(testSession(t), testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/positions?tick=1", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	// Cancel request after receiving the first messages.
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandlePositions(w, req)

	resp := w.Result()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	scanner := bufio.NewScanner(strings.NewReader(body))
	var foundMetadata, foundPositions bool

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		jsonStr := strings.TrimPrefix(line, "data: ")
		var msg map[string]any
		if err := json.Unmarshal([]byte(jsonStr), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		switch msg["type"] {
		case "metadata":
			foundMetadata = true
			if _, ok := msg["satellites"]; !ok {
				t.Error("metadata missing satellites")
			}
			if _, ok := msg["ephemeris_age_seconds"]; !ok {
				t.Error("metadata missing ephemeris_age_seconds")
			}
		case "positions":
			foundPositions = true
			if _, ok := msg["sim_epoch"]; !ok {
				t.Error("positions missing sim_epoch")
			}
			if _, ok := msg["dop"]; !ok {
				t.Error("positions missing dop")
			}
		}
	}

	if !foundMetadata {
		t.Error("did not receive metadata message")
	}
	if !foundPositions {
		t.Error("did not receive positions message")
	}

	// Verify SSE format: lines are "data: ...", "retry: ...", ":" or blank.
	for _, line := range strings.Split(body, "\n") {
		if line == "" || line == ":" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

// TestInvalidTickParameter verifies 400 on out-of-range tick values.
func TestInvalidTickParameter(t *testing.T) {
	handler := NewHandler(testSession(t), testConfig(), testLogger())

	for _, tick := range []string{"0", "61", "abc", "-1"} {
		req := httptest.NewRequest("GET", "/api/v1/stream/positions?tick="+tick, nil)
		req.RemoteAddr = "127.0.0.1:12345"
		w := httptest.NewRecorder()
		handler.HandlePositions(w, req)

		if w.Code != 400 {
			t.Errorf("tick=%s: status = %d, want 400", tick, w.Code)
		}
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newIPLimiter(3)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}

	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}

	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newIPLimiter(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 when the per-IP limit is exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	handler := NewHandler(testSession(t), Config{
		MaxConcurrentPerIP: 1,
		KeepaliveInterval:  30 * time.Second,
		TickInterval:       time.Second,
	}, testLogger())

	// Hold the first connection open.
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/positions", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req = req.WithContext(firstCtx)
		handler.HandlePositions(httptest.NewRecorder(), req)
	}()

	// Give the first connection time to acquire its slot.
	deadline := time.Now().Add(time.Second)
	for handler.limiter.count("10.0.0.1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first connection never acquired a slot")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest("GET", "/api/v1/stream/positions", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandlePositions(w, req)

	if w.Code != 429 {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After")
	}

	cancelFirst()
	<-done
}

// TestRunAdvancesClock verifies the tick loop moves the simulation epoch.
func TestRunAdvancesClock(t *testing.T) {
	sess := testSession(t)
	sess.SetSimEpoch(0)
	sess.SetTimeWarp(120)

	handler := NewHandler(sess, Config{TickInterval: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	handler.Run(ctx)

	if got := sess.SimEpoch(); got <= 0 {
		t.Errorf("sim epoch = %v after Run, want > 0", got)
	}
}
