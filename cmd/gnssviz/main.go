package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/star/gnssviz/internal/api"
	"github.com/star/gnssviz/internal/auth"
	"github.com/star/gnssviz/internal/ephemeris"
	"github.com/star/gnssviz/internal/metrics"
	"github.com/star/gnssviz/internal/session"
	"github.com/star/gnssviz/internal/stream"
)

func main() {
	loadConfig()

	logger := newLogger()

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	store := ephemeris.NewStore(logger)
	feedCache := ephemeris.NewCache(viper.GetString("feed.cache_dir"), viper.GetInt("feed.max_files"))
	fetcher := ephemeris.NewFetcher(viper.GetString("feed.url"))

	// Warm start from the newest cached feed snapshot.
	if data, ts, err := feedCache.LoadLatest(); err != nil {
		logger.Info("no ephemeris cache found, starting empty", "error", err)
	} else if n, err := store.Load(data); err != nil {
		logger.Warn("cached ephemeris unusable", "error", err)
	} else {
		logger.Info("loaded ephemeris from cache", "count", n, "cached_at", ts.Format(time.RFC3339))
	}

	sess := session.New(store)
	sess.SetObserver(session.Observer{
		LatDeg: viper.GetFloat64("observer.lat"),
		LonDeg: viper.GetFloat64("observer.lon"),
	})
	sess.SetTimeWarp(viper.GetFloat64("sim.time_warp"))

	streamCfg := stream.Config{
		MaxConcurrentPerIP: viper.GetInt("stream.max_per_ip"),
		KeepaliveInterval:  viper.GetDuration("stream.keepalive"),
		TickInterval:       viper.GetDuration("stream.tick"),
		DOPMaskDeg:         viper.GetFloat64("stream.dop_mask"),
		TrustProxy:         viper.GetBool("stream.trust_proxy"),
	}
	streamHandler := stream.NewHandler(sess, streamCfg, logger)

	addr := viper.GetString("http.addr")
	srv := api.NewServer(addr, api.Deps{
		Session: sess,
		Fetcher: fetcher,
		Cache:   feedCache,
		Stream:  streamHandler,
	}, logger, authCfg)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Simulation clock.
	go streamHandler.Run(ctx)

	// Periodic feed refresh.
	if viper.GetBool("feed.refresh_enabled") {
		go refreshLoop(ctx, fetcher, store, feedCache, viper.GetDuration("feed.refresh_interval"), logger)
	}

	// Background goroutine to update the ephemeris age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetEphemerisAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"feed_url", fetcher.SourceURL(),
			"satellites", store.Len(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadConfig wires defaults, an optional config file, and GNSSVIZ_* env vars.
func loadConfig() {
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("log.level", "info")

	viper.SetDefault("feed.url", "")
	viper.SetDefault("feed.cache_dir", "/tmp/gnssviz/ephemeris")
	viper.SetDefault("feed.max_files", 5)
	viper.SetDefault("feed.refresh_enabled", true)
	viper.SetDefault("feed.refresh_interval", 6*time.Hour)

	viper.SetDefault("observer.lat", session.DefaultObserver.LatDeg)
	viper.SetDefault("observer.lon", session.DefaultObserver.LonDeg)
	viper.SetDefault("sim.time_warp", 120.0)

	viper.SetDefault("stream.max_per_ip", 10)
	viper.SetDefault("stream.keepalive", 30*time.Second)
	viper.SetDefault("stream.tick", time.Second)
	viper.SetDefault("stream.dop_mask", 5.0)
	viper.SetDefault("stream.trust_proxy", false)

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.token", "")

	viper.SetEnvPrefix("GNSSVIZ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("gnssviz")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/gnssviz")
	// Config file is optional; env vars and defaults cover everything.
	_ = viper.ReadInConfig()
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(viper.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{
		Enabled: viper.GetBool("auth.enabled"),
		Token:   viper.GetString("auth.token"),
	}
	if cfg.Enabled && cfg.Token == "" {
		return cfg, errors.New("auth.token is required when auth is enabled")
	}
	if cfg.Enabled {
		logger.Info("auth enabled")
	}
	return cfg, nil
}

// refreshLoop fetches the feed on an interval, replacing the dataset and
// refreshing the warm-start cache. A failed refresh keeps the previous
// dataset and retries on the next tick.
func refreshLoop(ctx context.Context, fetcher *ephemeris.Fetcher, store *ephemeris.Store, feedCache *ephemeris.Cache, interval time.Duration, logger *slog.Logger) {
	if interval < time.Minute {
		interval = time.Minute
	}

	refresh := func() {
		fetchCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		body, err := fetcher.Fetch(fetchCtx)
		if err != nil {
			logger.Warn("ephemeris refresh fetch failed", "error", err)
			return
		}
		n, err := store.Load(body)
		if err != nil {
			logger.Warn("ephemeris refresh load failed", "error", err)
			return
		}
		if err := feedCache.Write(body, time.Now()); err != nil {
			logger.Warn("ephemeris cache write failed", "error", err)
		}
		logger.Info("ephemeris refreshed", "count", n)
	}

	// Refresh immediately when starting without data.
	if store.Len() == 0 {
		refresh()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}
