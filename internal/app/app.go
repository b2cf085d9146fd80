package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"marketfeed/config"
	"marketfeed/internal/ledger"
	"marketfeed/internal/market"
	"marketfeed/internal/oracle"
	"marketfeed/internal/stream"
	"marketfeed/pkg/coingecko"
	"marketfeed/pkg/storage/postgres"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Feed is a fully wired feed: seeded market, ledger and stream handler.
type Feed struct {
	Market   *market.State
	Stream   *stream.Server
	Recorder ledger.Recorder

	cfg    *config.Config
	logger *zap.Logger
	close  func() error
}

// Build loads the catalog, seeds the baselines and wires the stream server.
// Baselines are fully loaded before Build returns, so no connection sees an uninitialized market.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Feed, error) {
	catalog, err := loadCatalog(cfg.Market)
	if err != nil {
		return nil, err
	}

	policy := market.Policy{
		TrendBias:         cfg.Market.TrendBias,
		Band:              cfg.Market.Band,
		DefaultVolatility: cfg.Market.DefaultVolatility,
		MaxPriceChange:    cfg.Market.MaxPriceChange,
	}
	state := market.NewState(catalog, policy, nil)

	loader := &oracle.BaselineLoader{
		Timeout: cfg.Oracle.Timeout,
		Fixed:   cfg.Market.FixedBaseline,
		Logger:  logger.With(zap.String("component", "oracle")),
	}
	if cfg.Oracle.Enabled {
		rest := coingecko.NewRESTClient(cfg.Oracle.BaseURL, cfg.Oracle.Timeout).WithAPIKey(cfg.Oracle.APIKey)
		loader.Oracle = oracle.New(rest, cfg.Oracle.VsCurrency)
	}

	if err := state.Initialize(loader.Load(ctx, catalog)); err != nil {
		return nil, fmt.Errorf("initialize market: %w", err)
	}
	logger.Info("market initialized", zap.Int("assets", len(catalog)))

	recorder, closeRecorder, err := openRecorder(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := stream.Options{
		PriceUpdateInterval: cfg.Server.PriceUpdateInterval,
		MaxConnections:      cfg.Server.MaxConnections,
		MaxMessageSize:      cfg.Server.MaxMessageSize,
		WriteTimeout:        cfg.Server.WriteTimeout,
		QuoteCurrency:       cfg.Oracle.VsCurrency,
	}

	return &Feed{
		Market:   state,
		Stream:   stream.NewServer(state, recorder, opts, logger.With(zap.String("component", "stream"))),
		Recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		close:    closeRecorder,
	}, nil
}

func loadCatalog(cfg config.MarketConfig) (market.Catalog, error) {
	if cfg.CatalogFile == "" {
		return market.DefaultCatalog(), nil
	}
	catalog, err := market.LoadCatalogFile(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

func openRecorder(cfg *config.Config, logger *zap.Logger) (ledger.Recorder, func() error, error) {
	if !cfg.Postgres.Enabled {
		logger.Info("session ledger kept in memory")
		return ledger.NewMemoryRecorder(), func() error { return nil }, nil
	}

	client, err := postgres.InitializeAndMigrateSessionRecord(cfg.Postgres, cfg.Env, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	logger.Info("session ledger stored in postgres", zap.String("dbname", cfg.Postgres.DBName))
	return client, client.Close, nil
}

// Serve accepts connections on ln until ctx is done, then stops the listener,
// closes every live session with 1001 and waits for their teardown.
func (f *Feed) Serve(ctx context.Context, ln net.Listener) error {
	defer f.close()

	httpServer := &http.Server{
		Handler:           f.Stream,
		ReadHeaderTimeout: 10 * time.Second,
	}

	retention := &ledger.Retention{
		Recorder: f.Recorder,
		MaxAge:   f.cfg.Ledger.Retention,
		Logger:   f.logger.With(zap.String("component", "retention")),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		f.logger.Info("server listening", zap.String("addr", ln.Addr().String()), zap.String("path", stream.Path))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return retention.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		f.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by http.Server.
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			f.logger.Warn("http shutdown", zap.Error(err))
		}
		if err := f.Stream.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("close sessions: %w", err)
		}
		f.logger.Info("server shut down")
		return nil
	})

	return g.Wait()
}

// Run builds the feed and serves it on cfg.Server.Addr() until ctx is done.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	feed, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		feed.close()
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}
	return feed.Serve(ctx, ln)
}
