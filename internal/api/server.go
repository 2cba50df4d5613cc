package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/aleenlabs/aleen-agents/internal/agent"
	"github.com/aleenlabs/aleen-agents/internal/flow"
	"github.com/aleenlabs/aleen-agents/internal/genai"
	"github.com/aleenlabs/aleen-agents/internal/memory"
	"github.com/aleenlabs/aleen-agents/internal/messaging"
	"github.com/aleenlabs/aleen-agents/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Opts holds server configuration.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the conversation flow and its dependencies to HTTP.
type Server struct {
	addr      string
	flow      *flow.Flow
	store     store.Store
	memory    memory.Store
	genai     genai.ClientInterface
	agents    *agent.Registry
	messenger messaging.Service
	validate  *validator.Validate

	httpServer *http.Server
}

// NewServer creates the API server. messenger may be nil when WhatsApp
// delivery is disabled; chat requests then only return the reply.
func NewServer(fl *flow.Flow, st store.Store, mem memory.Store, gc genai.ClientInterface, agents *agent.Registry, messenger messaging.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		addr:      cfg.Addr,
		flow:      fl,
		store:     st,
		memory:    mem,
		genai:     gc,
		agents:    agents,
		messenger: messenger,
		validate:  validator.New(),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/whatsapp-chat", s.handleChat)
	r.Post("/send", s.handleSend)
	r.Get("/health", s.handleHealth)
	r.Get("/agents", s.handleListAgents)
	r.Post("/agents/reload", s.handleReloadAgents)
	r.Route("/user-memory/{phone}", func(r chi.Router) {
		r.Get("/", s.handleGetMemory)
		r.Delete("/", s.handleClearMemory)
	})
	return r
}

// Run starts the server and blocks until ctx is canceled or the listener
// fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
