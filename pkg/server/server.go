// Package server is the iShe backend: it mints realtime sessions seeded
// with the caller's earlier conversations, relays SDP offers, stores
// conversation records and accepts session recordings.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/haivivi/ishe/pkg/auth"
	"github.com/haivivi/ishe/pkg/conversation"
	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
	"github.com/haivivi/ishe/pkg/prompt"
	"github.com/haivivi/ishe/pkg/storage"
)

// Options are the dependencies of a Server.
type Options struct {
	Conversations *conversation.Service
	Recordings    storage.FileStore
	Provider      *openairealtime.ProviderClient
	Verifier      *auth.Verifier
	// Prompts defaults to the built-in templates.
	Prompts *prompt.Generator
	// Model and Voice are used for minted sessions.
	Model string
	Voice string
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
	Logger         *slog.Logger
	Clock          func() time.Time
}

// Server serves the HTTP API.
type Server struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New validates opts and returns a Server.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Conversations == nil:
		return nil, errors.New("server: conversations service is required")
	case opts.Recordings == nil:
		return nil, errors.New("server: recording storage is required")
	case opts.Provider == nil:
		return nil, errors.New("server: provider client is required")
	case opts.Verifier == nil:
		return nil, errors.New("server: token verifier is required")
	}
	if opts.Prompts == nil {
		opts.Prompts = prompt.New()
	}
	if opts.Model == "" {
		opts.Model = openairealtime.DefaultModel
	}
	if opts.Voice == "" {
		opts.Voice = "alloy"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Server{opts: opts, logger: opts.Logger, now: opts.Clock}, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.requestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.opts.Verifier.Middleware)
		r.Get("/session", s.handleSession)
		r.Post("/realtime", s.handleRealtime)
		r.Get("/api/protected", s.handleProtected)

		r.Route("/api/conversations", func(r chi.Router) {
			r.Post("/", s.handleAddConversation)
			r.Get("/search", s.handleSearch)
			r.Get("/user", s.handleUserConversations)
			r.Get("/history", s.handleHistory)
		})
		r.Post("/api/audio/upload", s.handleUpload)
	})
	return r
}

// Close releases the conversation store.
func (s *Server) Close() error {
	return s.opts.Conversations.Close()
}

// ListenAndServe serves h on addr until ctx is done, then shuts down
// gracefully within timeout.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, timeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
