package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/star/gnssviz/internal/ephemeris"
	"github.com/star/gnssviz/internal/session"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// handleMetadata reports what ephemeris set is loaded.
// GET /api/v1/ephemeris/metadata
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	store := s.deps.Session.Store()

	resp := map[string]any{
		"satellites":  store.Len(),
		"age_seconds": store.AgeSeconds(),
		"source_url":  s.deps.Fetcher.SourceURL(),
	}
	if ds := store.Dataset(); ds != nil {
		resp["loaded_at"] = ds.LoadedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh fetches the feed, replaces the dataset, and caches the raw
// body for warm starts.
// POST /api/v1/ephemeris/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	body, err := s.deps.Fetcher.Fetch(r.Context())
	if err != nil {
		s.logger.Error("ephemeris fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "ephemeris fetch failed")
		return
	}

	n, err := s.deps.Session.Store().Load(body)
	if err != nil {
		s.logger.Error("ephemeris load failed", "error", err)
		writeError(w, http.StatusBadGateway, "ephemeris feed malformed")
		return
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Write(body, time.Now()); err != nil {
			// Refresh already succeeded; caching is best effort.
			s.logger.Warn("ephemeris cache write failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"accepted": n})
}

// handlePositions returns the scene-space snapshot at the current sim epoch.
// GET /api/v1/positions
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session.Store().Len() == 0 {
		writeError(w, http.StatusServiceUnavailable, "no ephemeris loaded")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

// handleSky returns sky-plot entries for the current observer.
// GET /api/v1/sky
func (s *Server) handleSky(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session.Store().Len() == 0 {
		writeError(w, http.StatusServiceUnavailable, "no ephemeris loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sim_epoch":  s.deps.Session.SimEpoch(),
		"satellites": s.deps.Session.SkyData(),
	})
}

// handleDOP computes dilution of precision for the current observer.
// GET /api/v1/dop?mask=5
func (s *Server) handleDOP(w http.ResponseWriter, r *http.Request) {
	mask := 5.0
	if v := r.URL.Query().Get("mask"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f >= 90 {
			writeError(w, http.StatusBadRequest, "invalid mask parameter, must be 0-90")
			return
		}
		mask = f
	}

	if s.deps.Session.Store().Len() == 0 {
		writeError(w, http.StatusServiceUnavailable, "no ephemeris loaded")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.DOP(mask))
}

// handleSatellite returns one satellite's elements and current geometry.
// GET /api/v1/satellites/{norad_id}
func (s *Server) handleSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}

	detail, ok := s.deps.Session.Satellite(id)
	if !ok {
		writeError(w, http.StatusNotFound, "satellite not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleGetSession returns the current viewing state.
// GET /api/v1/session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Session.Settings())
}

// sessionUpdate is a partial update; nil fields are left unchanged.
type sessionUpdate struct {
	Observer       *session.Observer `json:"observer"`
	SimEpoch       *float64          `json:"sim_epoch"`
	TimeWarp       *float64          `json:"time_warp"`
	Paused         *bool             `json:"paused"`
	VisibleOnly    *bool             `json:"visible_only"`
	Highlighted    *int              `json:"highlighted"`
	Constellations map[string]bool   `json:"constellations"`
}

// constellationByName maps the wire names back to tags.
var constellationByName = map[string]ephemeris.Constellation{
	"gps":     ephemeris.GPS,
	"glonass": ephemeris.GLONASS,
	"galileo": ephemeris.Galileo,
	"beidou":  ephemeris.BeiDou,
	"other":   ephemeris.Other,
}

// handleUpdateSession applies a partial update to the viewing state.
// POST /api/v1/session
func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var upd sessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session update body")
		return
	}

	// Validate everything before applying anything.
	if upd.Observer != nil {
		o := *upd.Observer
		if o.LatDeg < -90 || o.LatDeg > 90 || o.LonDeg < -180 || o.LonDeg > 180 {
			writeError(w, http.StatusBadRequest, "observer out of range")
			return
		}
	}
	for name := range upd.Constellations {
		if _, ok := constellationByName[name]; !ok {
			writeError(w, http.StatusBadRequest, "unknown constellation "+name)
			return
		}
	}

	sess := s.deps.Session
	if upd.Observer != nil {
		sess.SetObserver(*upd.Observer)
	}
	if upd.SimEpoch != nil {
		sess.SetSimEpoch(*upd.SimEpoch)
	}
	if upd.TimeWarp != nil {
		sess.SetTimeWarp(*upd.TimeWarp)
	}
	if upd.Paused != nil {
		sess.SetPaused(*upd.Paused)
	}
	if upd.VisibleOnly != nil {
		sess.SetVisibleOnly(*upd.VisibleOnly)
	}
	if upd.Highlighted != nil {
		sess.SetHighlighted(*upd.Highlighted)
	}
	for name, on := range upd.Constellations {
		sess.SetConstellationVisible(constellationByName[name], on)
	}

	writeJSON(w, http.StatusOK, sess.Settings())
}
