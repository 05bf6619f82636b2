// Package server provides HTTP server construction for misli.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/misli/misli-go/internal/auth"
	"github.com/misli/misli-go/internal/library"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source is the part of *library.Library the HTTP endpoints read from.
type Source interface {
	List() []library.Summary
	Subscribe() (<-chan library.Event, func())
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Library    Source
	Users      auth.UserCredentials
	MCPHandler http.Handler
	Logger     *slog.Logger
}

// NewMux builds the HTTP mux with the MCP, event stream, health and
// metrics endpoints. MCP and events are protected by basic auth when
// users are configured; health and metrics never are.
func NewMux(cfg MuxConfig) *http.ServeMux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	authMiddleware := auth.Middleware(cfg.Users, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HandleHealth(cfg.Library))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/events", authMiddleware(HandleEvents(cfg.Library, logger)))
	if cfg.MCPHandler != nil {
		mux.Handle("/mcp", authMiddleware(cfg.MCPHandler))
	}

	return mux
}

// Health is the /healthz response body.
type Health struct {
	Status    string `json:"status"`
	NoteFiles int    `json:"note_files"`
	Broken    int    `json:"broken"`
}

// HandleHealth reports the number of indexed note files.
func HandleHealth(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

			return
		}

		h := Health{Status: "ok"}
		for _, s := range src.List() {
			h.NoteFiles++
			if s.Error != "" {
				h.Broken++
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(h)
	}
}
