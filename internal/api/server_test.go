package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/star/gnssviz/internal/auth"
	"github.com/star/gnssviz/internal/ephemeris"
	"github.com/star/gnssviz/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
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
  },
  {
    "OBJECT_NAME": "GLONASS-M 758",
    "NORAD_CAT_ID": 41330,
    "EPOCH": "2024-001.50000000",
    "MEAN_MOTION": 2.13102,
    "ECCENTRICITY": 0.0005,
    "INCLINATION": 64.8,
    "RA_OF_ASC_NODE": 30.0,
    "ARG_OF_PERICENTER": 90.0,
    "MEAN_ANOMALY": 200.0
  }
]`

// newTestServer builds a server over a loaded store and a stub upstream feed.
func newTestServer(t *testing.T, upstream string, authCfg auth.Config) *Server {
	t.Helper()
	store := ephemeris.NewStore(testLogger())
	if _, err := store.Load([]byte(testFeed)); err != nil {
		t.Fatalf("loading test feed: %v", err)
	}
	sess := session.New(store)
	sess.SetSimEpoch(1704110400)

	return NewServer("127.0.0.1:0", Deps{
		Session: sess,
		Fetcher: ephemeris.NewFetcher(upstream),
		Cache:   ephemeris.NewCache(t.TempDir(), 5),
	}, testLogger(), authCfg)
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	s.HTTPServer().Handler.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", auth.Config{})

	if w := do(s, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", w.Code)
	}
	if w := do(s, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", w.Code)
	}

	// A server over an empty store is not ready.
	empty := NewServer("127.0.0.1:0", Deps{
		Session: session.New(ephemeris.NewStore(testLogger())),
		Fetcher: ephemeris.NewFetcher("http://unused.invalid"),
	}, testLogger(), auth.Config{})
	if w := do(empty, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("empty store /readyz status = %d, want 503", w.Code)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestServer(t, "http://feed.example", auth.Config{})

	w := do(s, "GET", "/api/v1/ephemeris/metadata", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["satellites"].(float64) != 2 {
		t.Errorf("satellites = %v, want 2", resp["satellites"])
	}
	if resp["source_url"] != "http://feed.example" {
		t.Errorf("source_url = %v", resp["source_url"])
	}
	if resp["loaded_at"] == nil {
		t.Error("missing loaded_at")
	}
}

func TestRefresh(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL, auth.Config{})

	w := do(s, "POST", "/api/v1/ephemeris/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]int
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["accepted"] != 2 {
		t.Errorf("accepted = %d, want 2", resp["accepted"])
	}
}

func TestRefreshUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL, auth.Config{})
	if w := do(s, "POST", "/api/v1/ephemeris/refresh", ""); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestPositions(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", auth.Config{})

	w := do(s, "GET", "/api/v1/positions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var snap session.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Satellites) != 2 {
		t.Errorf("snapshot has %d satellites, want 2", len(snap.Satellites))
	}
	if snap.SimEpoch != 1704110400 {
		t.Errorf("sim_epoch = %v, want 1704110400", snap.SimEpoch)
	}
}

func TestSky(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", auth.Config{})

	w := do(s, "GET", "/api/v1/sky", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		SimEpoch   float64          `json:"sim_epoch"`
		Satellites []session.SkySat `json:"satellites"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	for _, sat := range resp.Satellites {
		if sat.ElDeg < 0 {
			t.Errorf("%q below horizon in sky data", sat.Name)
		}
	}
}

func TestDOP(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", auth.Config{})

	w := do(s, "GET", "/api/v1/dop?mask=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	// Two satellites can never yield a solution; expect the sentinel.
	if resp["gdop"].(float64) != 99.9 {
		t.Errorf("gdop = %v, want 99.9 sentinel", resp["gdop"])
	}

	if w := do(s, "GET", "/api/v1/dop?mask=120", ""); w.Code != http.StatusBadRequest {
		t.Errorf("mask=120 status = %d, want 400", w.Code)
	}
}

func TestSatelliteLookup(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", auth.Config{})

	w := do(s, "GET", "/api/v1/satellites/43873", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var detail session.SatelliteDetail
	if err := json.NewDecoder(w.Body).Decode(&detail); err != nil {
		t.Fatal(err)
	}
	if detail.Name != "GPS BIII-1 (PRN 04)" || detail.Constellation != "gps" {
		t.Errorf("detail = %+v", detail)
	}

	if w := do(s, "GET", "/api/v1/satellites/99999", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
	if w := do(s, "GET", "/api/v1/satellites/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestSessionUpdate(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid", auth.Config{})

	body := `{"observer":{"lat_deg":51.5,"lon_deg":-0.1},"paused":true,"constellations":{"gps":false}}`
	w := do(s, "POST", "/api/v1/session", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var settings session.Settings
	if err := json.NewDecoder(w.Body).Decode(&settings); err != nil {
		t.Fatal(err)
	}
	if settings.Observer.LatDeg != 51.5 || settings.Observer.LonDeg != -0.1 {
		t.Errorf("observer = %+v, want London", settings.Observer)
	}
	if !settings.Paused {
		t.Error("paused not applied")
	}
	if settings.Constellations["gps"] {
		t.Error("gps toggle not applied")
	}
	// Untouched fields keep their values.
	if settings.TimeWarp != 120 {
		t.Errorf("time_warp = %v, want default 120", settings.TimeWarp)
	}

	if w := do(s, "POST", "/api/v1/session", `{"observer":{"lat_deg":123,"lon_deg":0}}`); w.Code != http.StatusBadRequest {
		t.Errorf("out of range observer status = %d, want 400", w.Code)
	}
	if w := do(s, "POST", "/api/v1/session", `{"constellations":{"sbas":true}}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown constellation status = %d, want 400", w.Code)
	}
}

func TestAuth(t *testing.T) {
	cfg := auth.Config{Enabled: true, Token: "secret"}
	s := newTestServer(t, "http://unused.invalid", cfg)

	// Probes stay public.
	if w := do(s, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", w.Code)
	}
	// Read-only data stays public.
	if w := do(s, "GET", "/api/v1/sky", ""); w.Code != http.StatusOK {
		t.Errorf("/api/v1/sky status = %d, want 200", w.Code)
	}

	// Mutations require the token.
	if w := do(s, "POST", "/api/v1/session", `{"paused":true}`); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated session update status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/session", strings.NewReader(`{"paused":true}`))
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.HTTPServer().Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated session update status = %d, want 200", w.Code)
	}
}
