package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

// Invoker triggers one decision cycle for a participant, used by the
// admin invoke endpoints.
type Invoker interface {
	Invoke(ctx context.Context, participantID uuid.UUID) error
}

// Server exposes the read-only competition views plus the admin actions.
type Server struct {
	store    ports.Storage
	market   ports.MarketData
	invoker  Invoker
	adminKey string
	universe []string
	router   *mux.Router
}

// NewServer builds the HTTP surface. An empty adminKey disables the admin
// endpoints entirely.
func NewServer(store ports.Storage, market ports.MarketData, invoker Invoker, adminKey string, universe []string) *Server {
	s := &Server{
		store:    store,
		market:   market,
		invoker:  invoker,
		adminKey: adminKey,
		universe: universe,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/competitions", s.handleListCompetitions).Methods(http.MethodGet)
	api.HandleFunc("/competitions/{id}", s.handleGetCompetition).Methods(http.MethodGet)
	api.HandleFunc("/competitions/{id}/participants", s.handleListParticipants).Methods(http.MethodGet)
	api.HandleFunc("/competitions/{id}/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)

	api.HandleFunc("/participants/{id}/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	api.HandleFunc("/participants/{id}/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/participants/{id}/trades", s.handleTrades).Methods(http.MethodGet)
	api.HandleFunc("/participants/{id}/invocations", s.handleInvocations).Methods(http.MethodGet)
	api.HandleFunc("/participants/{id}/history", s.handleHistory).Methods(http.MethodGet)

	api.HandleFunc("/market/tickers", s.handleTickers).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/competitions", s.handleCreateCompetition).Methods(http.MethodPost)
	admin.HandleFunc("/competitions/{id}/start", s.handleStartCompetition).Methods(http.MethodPost)
	admin.HandleFunc("/competitions/{id}/stop", s.handleStopCompetition).Methods(http.MethodPost)
	admin.HandleFunc("/competitions/{id}/invoke", s.handleInvokeAll).Methods(http.MethodPost)
	admin.HandleFunc("/participants/{id}/invoke", s.handleInvokeOne).Methods(http.MethodPost)
	admin.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	s.router = r
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			respondError(w, http.StatusForbidden, "admin endpoints are disabled")
			return
		}
		if r.Header.Get("X-API-Key") != s.adminKey {
			respondError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- read-only handlers ---

func (s *Server) handleListCompetitions(w http.ResponseWriter, r *http.Request) {
	comps, err := s.store.ListCompetitions(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	views := make([]competitionView, len(comps))
	for i, c := range comps {
		views[i] = newCompetitionView(c)
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	comp, err := s.store.GetCompetition(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCompetitionView(comp))
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	parts, err := s.store.ListParticipants(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	views := make([]participantView, len(parts))
	for i, p := range parts {
		views[i] = newParticipantView(p)
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	parts, err := s.store.ListParticipants(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	entries := make([]leaderboardView, len(parts))
	for i, p := range parts {
		entries[i] = leaderboardView{
			Rank:   i + 1,
			Name:   p.Name,
			Status: p.Status,
			Equity: p.CurrentEquity,
			PnLPct: p.PnLPct().Round(2),
		}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pf, err := s.store.GetPortfolio(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPortfolioView(pf))
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	positions, err := s.store.ListPositionsByParticipant(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	views := make([]positionView, len(positions))
	for i, pos := range positions {
		views[i] = newPositionView(pos)
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	trades, err := s.store.ListTrades(r.Context(), id, queryLimit(r, 100))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	views := make([]tradeView, len(trades))
	for i, tr := range trades {
		views[i] = newTradeView(tr)
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invs, err := s.store.ListInvocations(r.Context(), id, queryLimit(r, 50))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	views := make([]invocationView, len(invs))
	for i, inv := range invs {
		views[i] = newInvocationView(inv)
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	from, to := time.Time{}, now
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}
	target := queryInt(r, "target", 800)

	records, err := s.store.ListHistory(r.Context(), id, from, to)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	points, interval := domain.AdaptiveDownsample(records, target)

	views := make([]historyView, len(points))
	for i, p := range points {
		views[i] = newHistoryView(p)
	}
	respondJSON(w, http.StatusOK, historyResponse{
		Points:          views,
		IntervalMinutes: interval,
		RawCount:        len(records),
	})
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	symbols := s.universe
	if v := r.URL.Query().Get("symbols"); v != "" {
		symbols = splitSymbols(v)
	}

	views := make([]tickerView, 0, len(symbols))
	for _, symbol := range symbols {
		t, err := s.market.Ticker(r.Context(), symbol)
		if errors.Is(err, ports.ErrNoPrice) {
			continue
		}
		if err != nil {
			respondError(w, http.StatusBadGateway, "market data unavailable")
			return
		}
		views = append(views, newTickerView(t))
	}
	respondJSON(w, http.StatusOK, views)
}

// --- plumbing ---

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(r *http.Request, def int) int {
	return queryInt(r, "limit", def)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitSymbols(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	slog.Error("api: storage error", "err", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}
