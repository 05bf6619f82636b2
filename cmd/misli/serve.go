package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/misli/misli-go/internal/config"
	"github.com/misli/misli-go/internal/library"
	"github.com/misli/misli-go/internal/logging"
	"github.com/misli/misli-go/internal/mcpserver"
	"github.com/misli/misli-go/internal/server"
	"github.com/misli/misli-go/internal/state"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// serve runs the MCP server and, when enabled, the library watcher until
// ctx is cancelled or one of them stops.
func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("misli starting",
		slog.String("version", Version),
		slog.String("dir", cfg.LibraryDir),
		slog.String("transport", cfg.Transport),
		slog.Bool("watch", cfg.Watch),
	)

	var users map[string]string
	if cfg.Transport == config.TransportHTTP {
		users, err = cfg.ParseAuthUsers()
		if err != nil {
			return fmt.Errorf("parsing MCP auth users: %w", err)
		}
		if len(users) == 0 {
			logger.Warn("MCP_AUTH_USERS is empty, HTTP endpoints are unauthenticated")
		}
	}

	st := openState(cfg, logger)
	if st != nil {
		defer st.Close()
	}

	lib, err := library.New(cfg.LibraryDir, library.Options{
		Extension: cfg.Extension,
		State:     st,
		Logger:    logger.With(slog.String("service", "library")),
		Workers:   cfg.IndexWorkers,
	})
	if err != nil {
		return fmt.Errorf("opening library: %w", err)
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "misli", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, lib)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Watch {
		g.Go(func() error {
			defer cancel()
			return lib.Watch(gctx)
		})
	}

	switch cfg.Transport {
	case config.TransportHTTP:
		mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return mcpServer
		}, nil)

		mux := server.NewMux(server.MuxConfig{
			Library:    lib,
			Users:      users,
			MCPHandler: mcpHandler,
			Logger:     logger.With(slog.String("service", "http")),
		})

		g.Go(func() error {
			defer cancel()
			return runHTTP(gctx, cfg.ListenAddr, mux, logger)
		})

	default:
		g.Go(func() error {
			defer cancel()
			logger.Info("serving MCP over stdio")
			return mcpServer.Run(gctx, &mcp.StdioTransport{})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("misli stopped")
	return nil
}

// openState opens the summary cache. It returns nil when the cache is
// disabled or cannot be opened.
func openState(cfg *config.Config, logger *slog.Logger) *state.State {
	if cfg.DisableCache {
		return nil
	}

	var (
		st  *state.State
		err error
	)
	if cfg.StatePath != "" {
		st, err = state.LoadAt(cfg.StatePath)
	} else {
		st, err = state.Load()
	}
	if err != nil {
		logger.Warn("summary cache unavailable", slog.String("error", err.Error()))
		return nil
	}

	return st
}

func runHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("listen", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
