// Package stream implements Server-Sent Events (SSE) streaming of per-tick
// constellation snapshots. Clients connect via GET /api/v1/stream/positions
// and receive scene-space position batches plus DOP at the simulation tick
// rate.
//
// SSE message format:
//
//	data: {"type":"positions","sim_epoch":1704110400.0,"observer":[...],"satellites":[...],"dop":{...}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","satellites":31,"ephemeris_age_seconds":1800}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/gnssviz/internal/metrics"
	"github.com/star/gnssviz/internal/session"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TickInterval       time.Duration // Simulation tick period (default: 1s).
	DOPMaskDeg         float64       // Elevation mask for per-tick DOP (default: 5).
	TrustProxy         bool          // Honor X-Forwarded-For / X-Real-IP.
}

// Handler manages SSE streaming connections and the simulation clock.
type Handler struct {
	session *session.Session
	config  Config
	limiter *ipLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(sess *session.Session, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.DOPMaskDeg == 0 {
		config.DOPMaskDeg = 5
	}
	return &Handler{
		session: sess,
		config:  config,
		limiter: newIPLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// Run advances the simulation clock at the configured tick rate until the
// context is canceled. Exactly one Run loop should be active per session;
// stream connections only read snapshots.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.config.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.session.Advance(now.Sub(last))
			last = now
		}
	}
}

type metadataMessage struct {
	Type                string  `json:"type"`
	Satellites          int     `json:"satellites"`
	EphemerisAgeSeconds float64 `json:"ephemeris_age_seconds"`
}

type positionsMessage struct {
	Type       string               `json:"type"`
	SimEpoch   float64              `json:"sim_epoch"`
	Observer   [3]float32           `json:"observer"`
	Satellites []session.ScenePoint `json:"satellites"`
	DOP        json.RawMessage      `json:"dop"`
}

// HandlePositions serves the SSE position stream.
// GET /api/v1/stream/positions?tick=1
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	tick := h.config.TickInterval
	if v := r.URL.Query().Get("tick"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid tick parameter, must be 1-60"})
			return
		}
		tick = time.Duration(n) * time.Second
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := clientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	// Track connection metrics.
	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"tick_seconds", tick.Seconds(),
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Use ResponseController to manage write deadlines for long-lived SSE.
	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	sub := &subscriber{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Send metadata message (first message on every connection).
	store := h.session.Store()
	meta := metadataMessage{
		Type:                "metadata",
		Satellites:          store.Len(),
		EphemerisAgeSeconds: store.AgeSeconds(),
	}
	if err := sub.sendJSON(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if h.session.Store().Len() == 0 {
				metrics.IncStreamErrors("no_dataset")
				continue
			}

			snap := h.session.Snapshot()
			dopJSON, err := json.Marshal(h.session.DOP(h.config.DOPMaskDeg))
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}

			msg := positionsMessage{
				Type:       "positions",
				SimEpoch:   snap.SimEpoch,
				Observer:   snap.Observer,
				Satellites: snap.Satellites,
				DOP:        dopJSON,
			}
			if err := sub.sendJSON(msg); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}

			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := sub.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}
