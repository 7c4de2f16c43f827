// Package server exposes a backend over HTTP: REST access to records and a
// websocket endpoint that streams a live view of a named query.
//
// Routes:
//
//	GET    /v1/queries
//	GET    /v1/collections/{collection}/records[?query=<name>]
//	GET    /v1/collections/{collection}/records/{id}
//	PUT    /v1/collections/{collection}/records/{id}
//	DELETE /v1/collections/{collection}/records/{id}
//	GET    /v1/watch/{query}            (websocket)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

// Finder is implemented by backends that evaluate declarative queries
// natively (sqlitestore pushes them down to SQL).
type Finder interface {
	Find(ctx context.Context, spec *queryir.Spec) ([]store.Entry, error)
}

// Server serves one backend and a fixed set of named queries.
type Server struct {
	backend store.Backend
	queries map[string]*queryir.Spec
	logger  *slog.Logger

	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	router       *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithCheckOrigin overrides the websocket origin check. The default
// accepts every origin.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// WithWriteTimeout bounds each websocket write. Default 10s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

// New creates a server. Queries are addressed by Spec.Name.
func New(backend store.Backend, queries []*queryir.Spec, opts ...Option) *Server {
	s := &Server{
		backend: backend,
		queries: make(map[string]*queryir.Spec, len(queries)),
		logger:  slog.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: 10 * time.Second,
	}
	for _, q := range queries {
		s.queries[q.Name] = q
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/queries", s.listQueries).Methods(http.MethodGet)
	v1.HandleFunc("/collections/{collection}/records", s.listRecords).Methods(http.MethodGet)
	v1.HandleFunc("/collections/{collection}/records/{id}", s.getRecord).Methods(http.MethodGet)
	v1.HandleFunc("/collections/{collection}/records/{id}", s.putRecord).Methods(http.MethodPut)
	v1.HandleFunc("/collections/{collection}/records/{id}", s.deleteRecord).Methods(http.MethodDelete)
	v1.HandleFunc("/watch/{query}", s.watch).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Open websocket sessions end when their connections close.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	}
}

func (s *Server) collection(name string) *store.Collection[record.Document] {
	return store.Bind(s.backend, record.DocumentType(name), store.WithLogger(s.logger))
}

func (s *Server) queryNames() []string {
	names := make([]string, 0, len(s.queries))
	for name := range s.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
