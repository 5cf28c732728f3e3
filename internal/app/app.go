package app

import (
	"context"
	"fmt"
	"math/rand"
	nethttp "net/http"
	"time"

	"github.com/sirupsen/logrus"

	"hollowgrove/bot/internal/config"
	botnet "hollowgrove/bot/internal/net"
	"hollowgrove/bot/internal/net/ws"
	"hollowgrove/bot/internal/raid"
	"hollowgrove/bot/internal/store"
)

// Run wires the stores, engine, scheduler, and gateway together and serves
// until the listener fails or ctx is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg)

	bossStore, err := store.OpenBossFile(cfg.DataDir, cfg.PresetSeed, log.WithField("component", "bossfile"))
	if err != nil {
		return fmt.Errorf("open boss store: %w", err)
	}
	profiles, err := store.OpenProfiles(cfg.DataDir, log.WithField("component", "profiles"))
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}

	board := ws.NewBoard(log.WithField("component", "board"))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	engine := raid.NewEngine(bossStore, bossStore, profiles, cfg.Raid, rng, board, log.WithField("component", "engine"))

	stop := make(chan struct{})
	go raid.NewScheduler(engine).Run(stop)
	defer close(stop)

	wsHandler := ws.NewHandler(engine, board, ws.HandlerConfig{
		AdminToken: cfg.AdminToken,
		Catalog:    bossStore,
		Logger:     log.WithField("component", "gateway"),
	})
	handler := botnet.NewHTTPHandler(engine, board, wsHandler, botnet.HTTPHandlerConfig{
		Logger: log.WithField("component", "http"),
	})

	srv := &nethttp.Server{Addr: cfg.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown did not finish cleanly")
		}
	}()

	log.WithField("addr", cfg.Addr).Info("server listening")
	if err := srv.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func newLogger(cfg config.Config) *logrus.Entry {
	logger := logrus.New()
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
	}
	logger.SetLevel(level)
	return logrus.NewEntry(logger)
}
