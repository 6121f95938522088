// Package api serves the indexed statistics as read-only JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/observability"
	"perp-stats/internal/storage"
)

// Config configures the API server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration // 0 = 30s
	WriteTimeout    time.Duration // 0 = 60s
	ShutdownTimeout time.Duration // 0 = 10s
}

// Server exposes aggregates, token infos and user counts.
type Server struct {
	cfg    Config
	stores *storage.Stores
	router *mux.Router
	log    *logrus.Entry
}

// NewServer creates a server reading from stores.
func NewServer(cfg Config, stores *storage.Stores, logger *logrus.Entry) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		stores: stores,
		router: mux.NewRouter(),
		log:    logging.OrDefault(logger, "api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", observability.Handler()).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/data", s.handleAggregates(domain.KindGlobal)).Methods("GET")
	v1.HandleFunc("/day-data", s.handleAggregates(domain.KindDay)).Methods("GET")
	v1.HandleFunc("/products", s.handleAggregates(domain.KindProduct)).Methods("GET")
	v1.HandleFunc("/day-products", s.handleAggregates(domain.KindDayProduct)).Methods("GET")
	v1.HandleFunc("/token-infos", s.handleTokenInfos).Methods("GET")
	v1.HandleFunc("/users/count", s.handleUsersCount).Methods("GET")
	v1.HandleFunc("/chains/{chainId}/positions/{key}/trades", s.handleTrades).Methods("GET")
}

// Router returns the HTTP router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("api server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Warn("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Message: message})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.WithError(err).Error("store query failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryInt parses an optional integer query parameter. Missing means 0.
func queryInt(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + name + ": " + v)
	}
	return n, nil
}
