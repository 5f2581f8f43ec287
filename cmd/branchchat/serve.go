package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"branchchat/internal/capabilities"
	"branchchat/internal/generator"
	"branchchat/internal/handler"
	"branchchat/internal/handler/sse"
	"branchchat/internal/memstore"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory development backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger
	logger.Info("server starting",
		"environment", a.cfg.Environment,
		"port", a.cfg.Port,
	)

	catalog, err := capabilities.NewRegistry()
	if err != nil {
		return fmt.Errorf("initialize capability registry: %w", err)
	}
	logger.Info("capability registry initialized", "providers", catalog.GetAllProviders())

	streamConfig := sse.DefaultConfig()
	streamConfig.ChunkDelay = a.cfg.StreamChunkDelay

	router := handler.NewRouter(handler.Dependencies{
		Store:   memstore.New(logger),
		Replier: generator.New(catalog, logger),
		Catalog: catalog,
		SSE:     streamConfig,
		Logger:  logger,
	})

	// CORS wraps everything so OPTIONS pre-flight requests are answered
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(a.cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Last-Event-ID", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
