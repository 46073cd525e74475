package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nearby/core-go/internal/config"
	"nearby/core-go/internal/db"
	"nearby/core-go/internal/httpapi"
	"nearby/core-go/internal/metrics"
	"nearby/core-go/internal/presence"
	"nearby/core-go/internal/presenceworker"
	"nearby/core-go/internal/proximity"
	"nearby/core-go/internal/realtime"
	"nearby/core-go/internal/social"
	"nearby/core-go/internal/store"
	"nearby/core-go/internal/users"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the stale presence sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger := httpapi.NewLogger(httpapi.LoggerOptions{Level: cfg.LogLevel, Format: cfg.LogFormat})

	st, closeStore, err := openStore(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := realtime.NewHub()
	defer hub.Close()
	gate := presence.NewSampleGate(presence.GateOptions{
		MinInterval:           cfg.Location.MinInterval,
		MinDisplacementMeters: cfg.Location.MinDisplacementMeters,
		MaxSilence:            cfg.Location.MaxSilence,
	})
	m := metrics.New(metrics.Options{Subscribers: hub.Subscribers, GateUsers: gate.Len})

	userSvc := users.NewService(logger, st, hub, users.Options{Subscriber: hub})
	tracker := presence.NewTracker(logger, userSvc, presence.Options{
		GracePeriod: cfg.Presence.GracePeriod,
		Recorder:    m,
	})
	defer tracker.Close()
	sweeper := presenceworker.New(logger, st, hub, presenceworker.Options{
		SweepInterval: cfg.Presence.SweepInterval,
		StaleAfter:    cfg.Presence.StaleAfter,
		Gate:          gate,
		Sessions:      tracker,
		Recorder:      m,
	})

	h := httpapi.NewHandler(logger, httpapi.Deps{
		Store:    st,
		Hub:      hub,
		Users:    userSvc,
		Presence: tracker,
		Gate:     gate,
		Proximity: proximity.NewService(logger, st, hub, proximity.Options{
			RadiusMeters:     cfg.Proximity.NearbyRadiusMeters,
			ViewRadiusMeters: cfg.Proximity.ViewRadiusMeters,
			Recorder:         m,
		}),
		Social:  social.NewService(logger, st, hub, social.Options{Subscriber: hub}),
		Metrics: m,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("nearby listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		// Closing the hub ends every open event stream so Shutdown can drain.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info().Msg("shutdown complete")
	return err
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger, migrate bool) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("database_url not set; using the in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if migrate {
		applied, err := pool.Migrate(ctx)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Strs("applied", applied).Msg("migrations applied")
	}
	return store.NewPostgres(pool.Queries(), pool), pool.Close, nil
}
