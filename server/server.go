// Package server exposes a snapshot store and a live realm over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/heapsnap/manifest"
	"github.com/chazu/heapsnap/store"
)

var log = commonlog.GetLogger("heapsnap.server")

// MaxUploadBytes bounds request bodies.
const MaxUploadBytes = 256 << 20

// Server is the HTTP service wrapping a store and a live realm.
type Server struct {
	store  *store.Store
	worker *RealmWorker
	config *manifest.Config
	router *chi.Mux
	http   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the configuration used for realms and snapshot limits.
// Without it, manifest.Default() is used.
func WithConfig(c *manifest.Config) Option {
	return func(s *Server) { s.config = c }
}

// New creates a Server over st.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{store: st}
	for _, opt := range opts {
		opt(s)
	}
	if s.config == nil {
		s.config = manifest.Default()
	}
	s.worker = NewRealmWorker(s.config.NewRealm)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/snapshots", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleUpload)
		r.Get("/{ref}", s.handleDownload)
		r.Get("/{ref}/inspect", s.handleInspect)
		r.Delete("/{ref}", s.handleDelete)
	})
	r.Route("/realm", func(r chi.Router) {
		r.Get("/globals", s.handleGlobals)
		r.Post("/eval", s.handleEval)
		r.Post("/take", s.handleTake)
		r.Post("/load/{ref}", s.handleLoad)
		r.Post("/reset", s.handleReset)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Worker returns the realm worker.
func (s *Server) Worker() *RealmWorker {
	return s.worker
}

// ListenAndServe serves on addr until Stop is called.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Noticef("heapsnap server listening on %s", addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down the HTTP server and the realm worker.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.worker.Stop()
	return err
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

type requestIDKey struct{}

// requestID tags each request with a UUID, echoed in X-Request-Id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Infof("%s %s %s -> %d (%d bytes, %s)", requestIDFrom(r.Context()),
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}
