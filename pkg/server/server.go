// Package server exposes policy generation, explanation and risk analysis
// over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/berkguzel/iamrisk/pkg/generator"
	"github.com/berkguzel/iamrisk/pkg/metrics"
	"github.com/berkguzel/iamrisk/pkg/risk"
	"github.com/berkguzel/iamrisk/pkg/types"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxBodyBytes = 1 << 20
	shutdownTimeout     = 10 * time.Second
)

// PolicySource fetches managed policies referenced by policy_arn.
type PolicySource interface {
	GetPolicyDocument(ctx context.Context, policyArn string) (types.PolicyDocument, error)
}

type Config struct {
	// Generator may be nil, in which case generation and explanation
	// answer 503.
	Generator generator.Generator
	// Policies may be nil, in which case requests naming policy_arn
	// answer 503.
	Policies     PolicySource
	Scorer       *risk.Analyzer
	Metrics      *metrics.Metrics
	MaxBodyBytes int64
}

type Server struct {
	generator    generator.Generator
	policies     PolicySource
	scorer       *risk.Analyzer
	metrics      *metrics.Metrics
	maxBodyBytes int64
}

func New(cfg Config) *Server {
	s := &Server{
		generator:    cfg.Generator,
		policies:     cfg.Policies,
		scorer:       cfg.Scorer,
		metrics:      cfg.Metrics,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if s.scorer == nil {
		s.scorer = risk.New(nil)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(s.accessLog)
	r.Use(recoverer)
	r.Use(SecurityHeaders)
	r.Use(s.limitRequestBody)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Post("/generate-policy", s.generatePolicy)
	r.Post("/explain-policy", s.explainPolicy)
	r.Post("/analyze-policy", s.analyzePolicy)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("iamrisk listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
