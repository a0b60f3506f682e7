package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/impactgo/internal/api"
	"github.com/star/impactgo/internal/auth"
	"github.com/star/impactgo/internal/driver"
	"github.com/star/impactgo/internal/neo"
	"github.com/star/impactgo/internal/sim"
	"github.com/star/impactgo/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("IMPACT_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	state := sim.New(loadSimConfig(logger))
	if err := state.TableError(); err != nil {
		logger.Warn("hazard table configuration ignored", "error", err)
	}
	history := driver.NewHistory(loadHistoryConfig(logger), logger)
	drv := driver.New(state, loadDriverConfig(logger), history, logger)

	neoCfg := loadNEOConfig(logger)
	neoSvc := neo.NewService(neoCfg, neo.NewStore(), logger)

	// Attempt to load cached NEO data on startup.
	if err := neoSvc.LoadCached(); err != nil {
		logger.Info("no NEO cache found, starting without NEO data", "error", err)
	}

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(drv, neoSvc.Store(), streamCfg, logger)

	srv := api.NewServer(api.Config{
		Addr:          addr,
		Auth:          authCfg,
		TrustProxy:    streamCfg.TrustProxy,
		MutationRate:  streamCfg.IntentRate,
		MutationBurst: streamCfg.IntentBurst,
	}, drv, neoSvc, streamHandler, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go drv.Start(ctx)
	go neoSvc.Run(ctx, time.Minute)

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "neo_fetch_enabled", neoCfg.EnableFetch)
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

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("IMPACT_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("IMPACT_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("IMPACT_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("IMPACT_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadSimConfig(logger *slog.Logger) sim.Config {
	cfg := sim.Config{
		DurationSeconds: sim.DefaultDurationSeconds,
		Epoch:           time.Now().UTC(),
	}

	if v := os.Getenv("IMPACT_DURATION_SECONDS"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || !(n > 0) {
			logger.Warn("invalid IMPACT_DURATION_SECONDS value, using default", "value", v, "default", cfg.DurationSeconds)
		} else {
			cfg.DurationSeconds = n
		}
	}

	if v := os.Getenv("IMPACT_SCENARIO_EPOCH"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			logger.Warn("invalid IMPACT_SCENARIO_EPOCH value, using process start", "value", v)
		} else {
			cfg.Epoch = t.UTC()
		}
	}

	logger.Info("simulation config",
		"duration_seconds", cfg.DurationSeconds,
		"epoch", cfg.Epoch.Format(time.RFC3339),
	)

	return cfg
}

func loadDriverConfig(logger *slog.Logger) driver.Config {
	cfg := driver.Config{
		FrameInterval: 33 * time.Millisecond,
		TimeScale:     1,
	}

	if v := os.Getenv("IMPACT_FRAME_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid IMPACT_FRAME_INTERVAL_MS value, using default", "value", v, "default", 33)
		} else {
			cfg.FrameInterval = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("IMPACT_TIME_SCALE"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || !(n > 0) {
			logger.Warn("invalid IMPACT_TIME_SCALE value, using default", "value", v, "default", 1)
		} else {
			cfg.TimeScale = n
		}
	}

	logger.Info("frame loop config",
		"frame_interval_ms", cfg.FrameInterval.Milliseconds(),
		"time_scale", cfg.TimeScale,
	)

	return cfg
}

func loadHistoryConfig(logger *slog.Logger) driver.HistoryConfig {
	cfg := driver.HistoryConfig{
		Step:   time.Second,
		Window: 120,
	}

	if v := os.Getenv("IMPACT_HISTORY_STEP_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid IMPACT_HISTORY_STEP_MS value, using default", "value", v, "default", 1000)
		} else {
			cfg.Step = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("IMPACT_HISTORY_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid IMPACT_HISTORY_WINDOW value, using default", "value", v, "default", 120)
		} else {
			cfg.Window = n
		}
	}

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           1000,
		KeepaliveInterval:  30 * time.Second,
		IntentRate:         30,
		IntentBurst:        60,
	}

	if v := os.Getenv("IMPACT_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid IMPACT_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("IMPACT_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid IMPACT_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("IMPACT_INTENT_RATE"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || !(n > 0) {
			logger.Warn("invalid IMPACT_INTENT_RATE value, using default", "value", v, "default", 30)
		} else {
			cfg.IntentRate = rate.Limit(n)
		}
	}

	if v := os.Getenv("IMPACT_INTENT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid IMPACT_INTENT_BURST value, using default", "value", v, "default", 60)
		} else {
			cfg.IntentBurst = n
		}
	}

	if v := os.Getenv("IMPACT_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid IMPACT_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"intent_rate", float64(cfg.IntentRate),
		"intent_burst", cfg.IntentBurst,
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

func loadNEOConfig(logger *slog.Logger) neo.Config {
	cfg := neo.Config{
		EnableFetch: true,
		CacheDir:    "/tmp/impactgo/neo",
		MaxFiles:    5,
		MaxAge:      24 * time.Hour,
	}

	if v := os.Getenv("IMPACT_ENABLE_NEO_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid IMPACT_ENABLE_NEO_FETCH value, defaulting to false", "value", v)
			cfg.EnableFetch = false
		} else {
			cfg.EnableFetch = enabled
		}
	}

	cfg.SourceURL = os.Getenv("IMPACT_NEO_SOURCE_URL")
	cfg.APIKey = os.Getenv("IMPACT_NEO_API_KEY")

	if v := os.Getenv("IMPACT_NEO_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("IMPACT_NEO_MAX_AGE"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn("invalid IMPACT_NEO_MAX_AGE value, defaulting to 86400", "value", v)
		} else {
			cfg.MaxAge = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("NEO config",
		"source_url", cfg.SourceURL,
		"cache_dir", cfg.CacheDir,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)

	return cfg
}
