// Package server exposes the request entry point over HTTP for alerting
// systems that post webhook notifications.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kamusis/opsroute/internal/router"
)

const maxBodyBytes = 1 << 20

// Handler turns a query into result text.
type Handler interface {
	Handle(ctx context.Context, query string) (string, error)
}

// Matcher routes a query without running anything.
type Matcher interface {
	Match(ctx context.Context, query string) (router.Match, error)
}

// Info is reported by /healthz.
type Info struct {
	Intents int
	Model   string
}

type Options struct {
	Addr            string
	MaxConcurrent   int
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	opts    Options
	handler Handler
	matcher Matcher
	info    Info
	sem     *semaphore.Weighted
	router  *mux.Router
	log     *zap.Logger
}

func New(opts Options, h Handler, m Matcher, info Info, logger *zap.Logger) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:    opts,
		handler: h,
		matcher: m,
		info:    info,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		router:  mux.NewRouter(),
		log:     logger.Named("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/alert", s.limit(http.HandlerFunc(s.handleAlert))).Methods(http.MethodPost)
	s.router.Handle("/match", s.limit(http.HandlerFunc(s.handleMatch))).Methods(http.MethodPost)
}

// Handler returns the HTTP handler with every route mounted.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on opts.Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// limit bounds the number of requests doing real work at once.
func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.sem.Acquire(r.Context(), 1); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server busy"})
			return
		}
		defer s.sem.Release(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("opsroute alert receiver is running"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"intents": s.info.Intents,
		"model":   s.info.Model,
	})
}

type alertRequest struct {
	Message *string `json:"message"`
}

type alertResponse struct {
	Status          string `json:"status"`
	AlertMessage    string `json:"alert_message"`
	ExecutionResult string `json:"execution_result,omitempty"`
	Error           string `json:"error,omitempty"`
}

const badAlert = "invalid request: expected JSON with 'message' key"

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := decodeBody(w, r, &req); err != nil || req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": badAlert})
		return
	}
	msg := *req.Message

	text, err := s.handler.Handle(r.Context(), msg)
	if err != nil {
		s.log.Error("alert handling failed", zap.String("id", w.Header().Get("X-Request-ID")), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, alertResponse{
			Status:       "error",
			AlertMessage: msg,
			Error:        err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, alertResponse{
		Status:          "success",
		AlertMessage:    msg,
		ExecutionResult: text,
	})
}

type matchRequest struct {
	Query string `json:"query"`
}

type matchResponse struct {
	Found    bool    `json:"found"`
	ActionID string  `json:"action_id"`
	Phrase   string  `json:"phrase"`
	Distance float64 `json:"distance"`
	Reason   string  `json:"reason,omitempty"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: expected JSON with 'query' key"})
		return
	}
	m, err := s.matcher.Match(r.Context(), req.Query)
	if err != nil {
		s.log.Error("match failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{
		Found:    m.Found,
		ActionID: m.ActionID,
		Phrase:   m.Phrase,
		Distance: m.Distance,
		Reason:   m.Reason,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
