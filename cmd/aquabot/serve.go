package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/HerbHall/aquabot/internal/server"
	"github.com/HerbHall/aquabot/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and all enabled plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	logger := a.logger
	logger.Info("AquaBot server starting", zap.String("version", version.Short()))

	if err := a.start(ctx); err != nil {
		a.stop(context.Background())
		return err
	}

	srvCfg, err := server.ConfigFrom(a.viper)
	if err != nil {
		a.stop(context.Background())
		return err
	}
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return a.db.DB().PingContext(ctx)
	})
	srv := server.New(srvCfg, a.reg, logger, readyCheck)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info("AquaBot server ready", zap.String("addr", srvCfg.Addr()))
	fmt.Fprintf(os.Stderr, "\n  AquaBot %s is ready!\n  API at http://localhost:%d/api/v1\n\n", version.Short(), srvCfg.Port)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	a.stop(shutdownCtx)

	logger.Info("AquaBot server stopped")
	return runErr
}
