// Package web serves the browser UI: uploads, table previews and the chat
// transcript for one in-memory session per visitor.
package web

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/KaramelBytes/csvchat/internal/chat"
	"github.com/KaramelBytes/csvchat/internal/config"
	"github.com/KaramelBytes/csvchat/internal/session"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling file parts to disk.
const multipartMemory = 8 << 20

// Handler holds the dependencies of the UI routes.
type Handler struct {
	Production bool

	cfg   *config.Global
	store *session.Store
	exec  *chat.Executor
	log   *slog.Logger
	md    goldmark.Markdown
}

func NewHandler(cfg *config.Global, store *session.Store, exec *chat.Executor, log *slog.Logger) *Handler {
	if cfg == nil {
		cfg = &config.Global{}
	}
	if log == nil {
		log = slog.Default()
	}
	if exec == nil {
		exec = chat.NewExecutor(cfg, nil, log)
	}
	return &Handler{
		Production: cfg.Production,
		cfg:        cfg,
		store:      store,
		exec:       exec,
		log:        log,
		md:         goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Routes builds the router. Unsafe methods are rate limited and CSRF checked.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(h.log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Healthz)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err == nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.EnsureCSRFToken)
		r.Use(h.WithSession)

		r.Get("/", h.Home)
		r.Get("/transcript.json", h.TranscriptJSON)

		r.Group(func(r chi.Router) {
			r.Use(RateLimiter(RateLimitConfig{
				RequestsPerSecond: h.cfg.RateLimitRPS,
				Burst:             h.cfg.RateLimitBurst,
			}))
			r.Use(h.limitBody)
			r.Use(h.RequireCSRF)

			r.Post("/settings", h.Settings)
			r.Post("/upload", h.Upload)
			r.Post("/chat", h.Chat)
		})
	})
	return r
}

func (h *Handler) maxBodyBytes() int64 {
	mb := h.cfg.MaxUploadMB
	if mb <= 0 {
		mb = 200
	}
	return int64(mb) << 20
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes())
		next.ServeHTTP(w, r)
	})
}

// Server wraps http.Server with graceful shutdown on context cancel.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

func NewServer(addr string, handler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to ten seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
