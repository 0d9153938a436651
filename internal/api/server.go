// Package api is the admin HTTP surface: CRUD for auto-broadcast rules,
// one-shot broadcasts and chains, chain launch, and funnel stats. It has no
// scheduling logic of its own; the workers only read what it writes.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rationly/rationbot/internal/chain"
	"github.com/rationly/rationbot/internal/config"
)

// Server is the admin API server.
type Server struct {
	config   config.ServerConfig
	handlers *Handlers
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires the admin API over the database and the chain engine.
func NewServer(cfg config.ServerConfig, db *sql.DB, engine *chain.Engine) *Server {
	handlers := NewHandlers(db, engine)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", handlers.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats/funnel", handlers.GetFunnelStats)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", handlers.ListRules)
			r.Post("/", handlers.CreateRule)
			r.Put("/{ruleID}", handlers.UpdateRule)
			r.Delete("/{ruleID}", handlers.DeleteRule)
		})

		r.Route("/recipes", func(r chi.Router) {
			r.Put("/", handlers.SaveRecipe)
			r.Delete("/{calories}/{day}/{meal}", handlers.DeleteRecipe)
		})

		r.Route("/broadcasts", func(r chi.Router) {
			r.Get("/", handlers.ListBroadcasts)
			r.Post("/", handlers.CreateBroadcast)
			r.Post("/{broadcastID}/cancel", handlers.CancelBroadcast)
		})

		r.Route("/chains", func(r chi.Router) {
			r.Get("/", handlers.ListChains)
			r.Post("/", handlers.CreateChain)
			r.Get("/{chainID}", handlers.GetChain)
			r.Post("/{chainID}/launch", handlers.LaunchChain)
			r.Post("/{chainID}/activate", handlers.SetChainActive(true))
			r.Post("/{chainID}/deactivate", handlers.SetChainActive(false))
			r.Delete("/{chainID}", handlers.DeleteChain)
		})
	})

	return &Server{config: cfg, handlers: handlers, router: r}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}
