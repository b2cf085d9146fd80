package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketfeed/config"
	"marketfeed/internal/app"
	"marketfeed/logger"
	"marketfeed/pkg/ratesclient"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "marketfeed",
		Short:         "Simulated crypto quote feed over WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configDir)
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "directory containing config.yaml")
	root.AddCommand(newProbeCmd(&configDir))
	return root
}

func serve(parent context.Context, configDir string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// viper config
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return err
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		return err
	}
	defer log.Sync()

	if err := cfg.ResolveSecrets(ctx, config.NewParameterStore()); err != nil {
		log.Error("failed to resolve secrets", zap.Error(err))
		return err
	}

	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("server failed", zap.Error(err))
		return err
	}
	return nil
}

func newProbeCmd(configDir *string) *cobra.Command {
	var (
		url      string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Subscribe to a running feed and log the quotes it pushes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()

			if url == "" {
				url = "ws://localhost" + cfg.Server.Addr() + "/markets/ws"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			return probe(ctx, url, cfg.Server.ReconnectInterval, log)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "feed URL (defaults to the local server)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func probe(ctx context.Context, url string, reconnect time.Duration, log *zap.Logger) error {
	client := ratesclient.NewClient(url, reconnect, log)
	client.SetFrameHandler(func(f ratesclient.Frame) {
		switch {
		case f.Data != nil:
			log.Info("rate",
				zap.String("symbol", f.Data.Symbol),
				zap.Float64("bid", f.Data.Bid),
				zap.Float64("ask", f.Data.Ask),
				zap.Float64("spot", f.Data.Spot),
				zap.Float64("change", f.Data.Change))
		case f.Event == "error":
			log.Warn("feed error", zap.String("message", f.Message))
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Listen(ctx); err != nil && !errors.Is(err, ratesclient.ErrClosed) {
		return err
	}
	return nil
}
