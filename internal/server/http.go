// Package server exposes the read-side HTTP/JSON API: live PnL queries,
// stored reports, and the leaderboard.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"OutcomeLedger/internal/core"
	"OutcomeLedger/internal/observability"
	"OutcomeLedger/internal/persistence"
	"OutcomeLedger/internal/report"
	"OutcomeLedger/internal/warehouse"
)

// ReportReader is the stored-report lookup surface the handlers need.
type ReportReader interface {
	Latest(ctx context.Context, wallet string, policy report.Policy) (report.Report, bool, error)
	Leaderboard(ctx context.Context, policy report.Policy, limit int) ([]persistence.LeaderboardEntry, error)
}

// Deps holds everything the HTTP surface reads from. The server never
// writes; replay results requested here are computed and discarded.
type Deps struct {
	Preloader *warehouse.Preloader
	Reports   ReportReader
	Engine    core.Config
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	deps Deps
}

func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/wallets/{wallet}/pnl", s.handleLivePnL)
	mux.HandleFunc("GET /v1/wallets/{wallet}/report", s.handleStoredReport)
	mux.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /healthz", deps.Health.LivenessHandler)
	mux.HandleFunc("GET /readyz", deps.Health.ReadinessHandler)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.deps.Log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleLivePnL replays the wallet's full history on demand and returns a
// fresh report. Expensive for large wallets; dashboards should prefer the
// stored report endpoint.
func (s *Server) handleLivePnL(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	policy, ok := s.parsePolicy(w, r)
	if !ok {
		return
	}

	includeMarks := policy == report.PolicyFull
	batch, err := s.deps.Preloader.PreloadWallet(r.Context(), wallet, includeMarks)
	if err != nil {
		s.deps.Log.Error().Err(err).Str("wallet", wallet).Msg("live pnl preload failed")
		s.writeError(w, http.StatusBadGateway, "warehouse unavailable")
		return
	}

	cfg := s.deps.Engine
	cfg.Policy = policy
	cfg.Marks = batch.Marks

	engine := core.NewEngine(cfg, batch.Registry, batch.Resolutions, s.deps.Metrics, s.deps.Log)
	rep := engine.ReplayWallet(wallet, batch.Events[wallet], time.Now().UTC())
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStoredReport(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	policy, ok := s.parsePolicy(w, r)
	if !ok {
		return
	}

	rep, found, err := s.deps.Reports.Latest(r.Context(), wallet, policy)
	if err != nil {
		s.deps.Log.Error().Err(err).Str("wallet", wallet).Msg("stored report lookup failed")
		s.writeError(w, http.StatusInternalServerError, "report lookup failed")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "no report for wallet")
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	policy, ok := s.parsePolicy(w, r)
	if !ok {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.deps.Reports.Leaderboard(r.Context(), policy, limit)
	if err != nil {
		s.deps.Log.Error().Err(err).Msg("leaderboard query failed")
		s.writeError(w, http.StatusInternalServerError, "leaderboard query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"policy":  policy.String(),
		"entries": entries,
	})
}

// parsePolicy reads the policy query parameter, defaulting to the engine
// config's policy when absent.
func (s *Server) parsePolicy(w http.ResponseWriter, r *http.Request) (report.Policy, bool) {
	raw := r.URL.Query().Get("policy")
	if raw == "" {
		return s.deps.Engine.Policy, true
	}
	policy, err := report.ParsePolicy(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return policy, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Log.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
