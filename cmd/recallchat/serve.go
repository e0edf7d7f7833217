package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/recallchat/internal/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the model readiness and processing monitors",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	caps, err := a.generator.Initialize(initCtx)
	cancel()
	if err != nil {
		logger.Warn("generation backend not reachable yet", zap.Error(err))
	} else {
		logger.Info("generation backend ready", zap.String("model", caps.Model))
	}

	router := api.SetupRouter(api.Services{
		Chat:   a.chat,
		Admin:  a.admin,
		Ingest: a.ingest,
		Broker: a.broker,
	}, api.RouterConfig{
		APIKey:       cfg.Admin.APIKey,
		AllowOrigins: cfg.Server.AllowOrigins,
	}, logger)

	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		// event streams end with the process
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting recallchat server", zap.String("address", cfg.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if task := a.readiness.Start(gctx); task != nil {
			res := task.Wait()
			logger.Info("model readiness polling finished",
				zap.String("reason", string(res.Reason)),
				zap.Int("attempts", res.Attempts),
				zap.String("state", string(a.readiness.Snapshot().State)),
			)
		}
		return nil
	})

	g.Go(func() error {
		if task := a.gate.Start(gctx); task != nil {
			task.Wait()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
