// Package server provides the HTTP server of the connector.
//
// The server exposes three API surfaces:
//
// # Connector Endpoint
//
// POST {basePath}/data - Receives multipart protocol messages from other
// connectors. Every message is answered with a multipart reply; refusals are
// rejection messages sent with status 200. Only a body that is empty or
// whose header id cannot be read is answered with status 400.
//
// # Admin API (requires X-Admin-Key)
//
//   - PUT /admin/catalog?element={id}     - Store a catalog document (no id: self-description)
//   - PUT /admin/artifacts?artifact={id}  - Store artifact data
//   - GET /admin/agreements?id={id}       - Get a stored agreement
//
// # Health & Metrics
//
//   - GET /health  - Liveness probe
//   - GET /ready   - Readiness probe (storage ping)
//   - GET /metrics - Prometheus metrics (if enabled)
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sebplorenz/DataspaceConnector/internal/config"
	"github.com/sebplorenz/DataspaceConnector/internal/storage"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/mime"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
)

// maxMessageSize bounds inbound message bodies
const maxMessageSize = 32 << 20

// IdentityProvider attaches the connector identity and a current security
// token to a request context
type IdentityProvider interface {
	WithIdentity(ctx context.Context, base message.Identity) (context.Context, error)
}

// Options holds the collaborators of a Server
type Options struct {
	Store      storage.Store
	Dispatcher *msh.Dispatcher

	// Identity issues tokens for replies. Nil sends replies without a token.
	Identity IdentityProvider

	// Gatherer is served on the metrics path. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	Logger *zap.Logger
}

// Server is the connector HTTP server
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpSrv    *http.Server
	router     *chi.Mux
	store      storage.Store
	dispatcher *msh.Dispatcher
	identity   IdentityProvider
	base       message.Identity
	limiter    *rate.Limiter
	gatherer   prometheus.Gatherer
}

// New creates a new connector server
func New(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:     cfg,
		logger:     opts.Logger.Named("server"),
		router:     chi.NewRouter(),
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		identity:   opts.Identity,
		gatherer:   opts.Gatherer,
		base: message.Identity{
			ConnectorID:  cfg.Connector.ID,
			SenderAgent:  cfg.Connector.SenderAgent,
			ModelVersion: cfg.Connector.ModelVersion,
		},
	}
	if rl := cfg.Server.RateLimit; rl.RequestsPerSecond > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = int(rl.RequestsPerSecond) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
	}

	s.routes()

	s.httpSrv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the specified address
func (s *Server) Start(addr string) error {
	s.httpSrv.Addr = addr
	s.logger.Info("starting server", zap.String("addr", addr), zap.Bool("tls", s.config.Server.TLS.Enabled))
	if s.config.Server.TLS.Enabled {
		return s.httpSrv.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	return s.store.Close(ctx)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	if m := s.config.Metrics.Metrics; m.Enabled && m.Path != "" {
		r.Method(http.MethodGet, m.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	basePath := strings.TrimSuffix(s.config.Server.BasePath, "/")
	r.With(s.withRateLimit).Post(basePath+"/data", s.handleInbound)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.withAdmin)
		r.Put("/catalog", s.handlePutDescription)
		r.Put("/artifacts", s.handlePutArtifact)
		r.Get("/agreements", s.handleGetAgreement)
	})
}

// Middleware

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-Admin-Key")
		if apiKey == "" || apiKey != s.config.Server.AdminKey {
			s.jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.jsonError(w, "storage not ready", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// Connector endpoint

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	ctx, err := s.requestContext(r.Context())
	if err != nil {
		s.logger.Error("cannot attach connector identity", zap.Error(err))
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		s.logger.Info("unreadable inbound message",
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.Error(err))
		s.writeReply(w, msh.Reject(ctx, nil, message.RejectionMalformedMessage), http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		s.logger.Info("empty inbound message", zap.String("request_id", middleware.GetReqID(ctx)))
		s.writeReply(w, msh.Reject(ctx, nil, message.RejectionBadParameters), http.StatusBadRequest)
		return
	}

	msg, err := mime.Parse(bytes.NewReader(body), r.Header.Get("Content-Type"))
	if err != nil {
		s.logger.Info("malformed inbound message",
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.Error(err))
		s.writeReply(w, msh.Reject(ctx, nil, message.RejectionMalformedMessage), http.StatusBadRequest)
		return
	}

	reply := s.dispatcher.Dispatch(ctx, msg)
	s.writeReply(w, reply, http.StatusOK)
}

func (s *Server) requestContext(ctx context.Context) (context.Context, error) {
	if s.identity == nil {
		return message.WithIdentity(ctx, s.base), nil
	}
	return s.identity.WithIdentity(ctx, s.base)
}

func (s *Server) writeReply(w http.ResponseWriter, reply *msh.Reply, status int) {
	body, contentType, err := reply.Encode()
	if err != nil {
		s.logger.Error("failed to encode reply", zap.Error(err))
		http.Error(w, "reply encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("failed to write reply", zap.Error(err))
	}
}

// Admin handlers

func (s *Server) handlePutDescription(w http.ResponseWriter, r *http.Request) {
	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		s.jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(doc) {
		s.jsonError(w, "catalog documents must be JSON", http.StatusBadRequest)
		return
	}

	element := r.URL.Query().Get("element")
	if err := s.store.PutDescription(r.Context(), element, doc); err != nil {
		s.logger.Error("failed to store description", zap.String("element", element), zap.Error(err))
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutArtifact(w http.ResponseWriter, r *http.Request) {
	artifactID := r.URL.Query().Get("artifact")
	if artifactID == "" {
		s.jsonError(w, "artifact is required", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		s.jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := s.store.PutArtifactData(r.Context(), artifactID, data); err != nil {
		s.logger.Error("failed to store artifact", zap.String("artifact", artifactID), zap.Error(err))
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.jsonError(w, "id is required", http.StatusBadRequest)
		return
	}
	a, err := s.store.GetAgreement(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load agreement", zap.String("agreement", id), zap.Error(err))
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if a == nil {
		s.jsonError(w, fmt.Sprintf("agreement %s not found", id), http.StatusNotFound)
		return
	}
	s.jsonResponse(w, a, http.StatusOK)
}

// Helper functions

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, msg string, status int) {
	s.jsonResponse(w, map[string]string{"error": msg}, status)
}
