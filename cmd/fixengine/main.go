// fixengine is a multi-venue FIX 4.4 trading engine.
//
// Architecture:
//
//	main.go                 — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	internal/engine         — orchestrator: wires sessions → order/market-data managers, routes by Selector
//	internal/session        — one FIX session per venue: TLS transport, heartbeats, sequence discipline
//	internal/order          — order lifecycle: submit/cancel/replace/mass-cancel, execution report resolution
//	internal/marketdata     — per-symbol order book built from snapshot + incremental refresh messages
//	internal/fix            — wire codec: parse/build SOH-delimited messages, checksum and length framing
//	internal/pool           — zero-allocation envelope/buffer pooling for the hot parse/build path
//	internal/store          — sequence-number persistence (file or Redis), survives restarts
//	internal/api            — operator dashboard: HTTP snapshot + WebSocket event stream
//
// How it routes orders:
//
//	Each configured venue gets its own FIX session. SubmitOrder either
//	pins to a named venue or asks the Selector to pick among currently
//	healthy ones (logged on, past the post-error cooldown). A venue going
//	down never blocks routing to the others.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fixengine/internal/api"
	"fixengine/internal/config"
	"fixengine/internal/engine"
	"fixengine/internal/fix"
	"fixengine/internal/pool"
	"fixengine/internal/session"
	"fixengine/internal/store"
	"fixengine/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("FIXENGINE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	seqStore, err := newSequenceStore(cfg.SequenceStore)
	if err != nil {
		logger.Error("failed to open sequence store", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server

	eng := engine.New(engineConfigFrom(*cfg, seqStore), logger, engine.Callbacks{
		OnExecution: func(ord types.Order, m fix.Message) {
			if apiServer != nil {
				apiServer.Broadcast(api.NewExecutionEvent(ord.SessionID, ord))
			}
		},
		OnVenueStatus: func(st types.VenueStatus) {
			if apiServer != nil {
				apiServer.Broadcast(api.NewVenueStatusEvent(st.SessionID, st.Connected, "", st.ErrorRate))
			}
		},
	})

	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Initialize(ctx); err != nil {
		logger.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}
	go eng.Run(ctx)

	logger.Info("fixengine started",
		"sender_comp_id", cfg.Engine.SenderCompID,
		"venues", len(cfg.Sessions),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	eng.Drain(drainCtx)
}

func newSequenceStore(cfg config.SequenceStoreConfig) (session.SequenceStore, error) {
	switch cfg.Backend {
	case "redis":
		return store.NewRedisSequenceStore(store.RedisConfig{
			URL:       cfg.RedisURL,
			DB:        cfg.RedisDB,
			PoolSize:  cfg.RedisPoolSize,
			KeyPrefix: cfg.RedisKeyPrefix,
			TTL:       cfg.RedisTTL,
		})
	default:
		dir := cfg.FileDir
		if dir == "" {
			dir = "data/sequences"
		}
		return store.OpenFileStore(dir)
	}
}

func engineConfigFrom(cfg config.Config, seqStore session.SequenceStore) engine.Config {
	sessions := make([]session.Config, 0, len(cfg.Sessions))
	for _, sc := range cfg.Sessions {
		sessions = append(sessions, session.Config{
			SenderCompID:      cfg.Engine.SenderCompID,
			TargetCompID:      sc.TargetCompID,
			Host:              sc.Host,
			Port:              sc.Port,
			UseTLS:            sc.UseTLS,
			TLSPeerName:       sc.TLSPeerName,
			PinnedFingerprint: sc.PinnedFingerprint,
			HeartBtInt:        orDefault(sc.HeartBtInt, cfg.Engine.DefaultHeartBtInt),
			ResetOnLogon:      sc.ResetOnLogon,
			Reconnect: session.ReconnectPolicy{
				Enabled:   sc.Reconnect.Enabled,
				Initial:   sc.Reconnect.Initial,
				Max:       sc.Reconnect.Max,
				JitterPct: sc.Reconnect.JitterPct,
			},
		})
	}

	return engine.Config{
		Pool: pool.Config{
			MaxMessageSize: cfg.Engine.MaxMessageBytes,
			EnvelopeCap:    cfg.Engine.PoolEnvelopeCount,
			BufferCap:      cfg.Engine.PoolBufferCount,
		},
		Sessions:             sessions,
		HealthCooldown:       cfg.Engine.HealthCooldown,
		HousekeepingInterval: cfg.Engine.HousekeepingPeriod,
		PendingNewTimeout:    cfg.Engine.PendingNewTimeout,
		SequenceStore:        seqStore,
	}
}

func orDefault(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
