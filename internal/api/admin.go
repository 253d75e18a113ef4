package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/gauntlet/internal/application/engine"
	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// invokeFanOutLimit bounds the admin invoke-all fan-out.
const invokeFanOutLimit = 4

type createCompetitionRequest struct {
	Name                 string                     `json:"name"`
	Description          string                     `json:"description"`
	StartTime            time.Time                  `json:"start_time"`
	EndTime              time.Time                  `json:"end_time"`
	InvocationIntervalS  int                        `json:"invocation_interval_seconds"`
	InitialCapital       decimal.Decimal            `json:"initial_capital"`
	MaxLeverage          decimal.Decimal            `json:"max_leverage"`
	MaintenanceMarginPct decimal.Decimal            `json:"maintenance_margin_pct"`
	AllowedAssetClasses  []string                   `json:"allowed_asset_classes"`
	MaxParticipants      int                        `json:"max_participants"`
	MarketHoursOnly      bool                       `json:"market_hours_only"`
	Participants         []createParticipantRequest `json:"participants"`
}

type createParticipantRequest struct {
	Name        string             `json:"name"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	EndpointURL string             `json:"endpoint_url,omitempty"`
	AgentConfig domain.AgentConfig `json:"agent_config"`
}

func (s *Server) handleCreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req createCompetitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now().UTC()
	comp := domain.Competition{
		ID:                   uuid.New(),
		Name:                 req.Name,
		Description:          req.Description,
		Status:               domain.CompetitionPending,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		InvocationInterval:   time.Duration(req.InvocationIntervalS) * time.Second,
		InitialCapital:       req.InitialCapital,
		MaxLeverage:          req.MaxLeverage,
		MaintenanceMarginPct: req.MaintenanceMarginPct,
		AllowedAssetClasses:  req.AllowedAssetClasses,
		MaxParticipants:      req.MaxParticipants,
		MarketHoursOnly:      req.MarketHoursOnly,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if comp.InvocationInterval <= 0 {
		comp.InvocationInterval = 5 * time.Minute
	}
	if len(comp.AllowedAssetClasses) == 0 {
		comp.AllowedAssetClasses = []string{"crypto"}
	}
	if err := comp.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Participants) > comp.MaxParticipants {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("%d participants exceed the limit of %d", len(req.Participants), comp.MaxParticipants))
		return
	}

	if err := s.store.SaveCompetition(r.Context(), comp); err != nil {
		respondStoreError(w, err)
		return
	}
	for _, pr := range req.Participants {
		if _, err := s.enrollParticipant(r, comp, pr); err != nil {
			respondStoreError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, newCompetitionView(comp))
}

func (s *Server) enrollParticipant(r *http.Request, comp domain.Competition, pr createParticipantRequest) (domain.Participant, error) {
	p := domain.Participant{
		ID:             uuid.New(),
		CompetitionID:  comp.ID,
		Name:           pr.Name,
		AgentProvider:  pr.Provider,
		AgentModel:     pr.Model,
		AgentConfig:    pr.AgentConfig,
		EndpointURL:    pr.EndpointURL,
		Status:         domain.ParticipantActive,
		JoinedAt:       time.Now().UTC(),
		InitialCapital: comp.InitialCapital,
		CurrentEquity:  comp.InitialCapital,
		PeakEquity:     comp.InitialCapital,
	}
	if err := s.store.SaveParticipant(r.Context(), p); err != nil {
		return domain.Participant{}, err
	}
	if _, err := engine.CreatePortfolio(r.Context(), s.store, p); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func (s *Server) handleStartCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	comp, err := s.store.GetCompetition(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if comp.Status != domain.CompetitionPending {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("competition is %s, only pending competitions can start", comp.Status))
		return
	}
	if err := s.store.UpdateCompetitionStatus(r.Context(), id, domain.CompetitionActive); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(domain.CompetitionActive)})
}

func (s *Server) handleStopCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	comp, err := s.store.GetCompetition(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if comp.Status != domain.CompetitionActive {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("competition is %s, only active competitions can stop", comp.Status))
		return
	}
	if err := s.store.UpdateCompetitionStatus(r.Context(), id, domain.CompetitionCompleted); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(domain.CompetitionCompleted)})
}

func (s *Server) handleInvokeOne(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetParticipant(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	if err := s.invoker.Invoke(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"result": "invoked"})
}

func (s *Server) handleInvokeAll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	participants, err := s.store.ListActiveParticipants(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	type result struct {
		Name  string `json:"name"`
		Error string `json:"error,omitempty"`
	}
	results := make([]result, len(participants))

	g, gctx := errgroup.WithContext(r.Context())
	g.SetLimit(invokeFanOutLimit)
	for i, p := range participants {
		i, p := i, p
		g.Go(func() error {
			res := result{Name: p.Name}
			if err := s.invoker.Invoke(gctx, p.ID); err != nil {
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()
	respondJSON(w, http.StatusOK, map[string]any{"invoked": len(participants), "results": results})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	comps, err := s.store.ListCompetitions(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	for _, comp := range comps {
		if err := s.store.DeleteCompetition(r.Context(), comp.ID); err != nil {
			respondStoreError(w, err)
			return
		}
	}

	comp, participants, err := s.seedDefault(r)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	names := make([]string, len(participants))
	for i, p := range participants {
		names[i] = p.Name
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"competition":  newCompetitionView(comp),
		"participants": names,
	})
}

// seedDefault recreates the stock one-week competition with the four
// house agents, used by reset and first boot.
func (s *Server) seedDefault(r *http.Request) (domain.Competition, []domain.Participant, error) {
	now := time.Now().UTC()
	comp := domain.Competition{
		ID:                   uuid.New(),
		Name:                 "agent-arena",
		Description:          "Stock one-week leveraged CFD competition.",
		Status:               domain.CompetitionActive,
		StartTime:            now,
		EndTime:              now.Add(7 * 24 * time.Hour),
		InvocationInterval:   5 * time.Minute,
		InitialCapital:       decimal.NewFromInt(10000),
		MaxLeverage:          decimal.NewFromInt(10),
		MaintenanceMarginPct: decimal.NewFromInt(5),
		AllowedAssetClasses:  []string{"crypto"},
		MaxParticipants:      10,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.SaveCompetition(r.Context(), comp); err != nil {
		return domain.Competition{}, nil, err
	}

	stock := []createParticipantRequest{
		{Name: "claude", Provider: "anthropic", Model: "claude-sonnet-4-5",
			AgentConfig: domain.AgentConfig{InputCostPerMTok: 3, OutputCostPerMTok: 15}},
		{Name: "gpt", Provider: "openai", Model: "gpt-4o",
			AgentConfig: domain.AgentConfig{InputCostPerMTok: 2.5, OutputCostPerMTok: 10}},
		{Name: "deepseek", Provider: "deepseek", Model: "deepseek-chat",
			AgentConfig: domain.AgentConfig{InputCostPerMTok: 0.27, OutputCostPerMTok: 1.1}},
		{Name: "qwen", Provider: "qwen", Model: "qwen-plus",
			AgentConfig: domain.AgentConfig{InputCostPerMTok: 0.4, OutputCostPerMTok: 1.2}},
	}
	participants := make([]domain.Participant, 0, len(stock))
	for _, pr := range stock {
		p, err := s.enrollParticipant(r, comp, pr)
		if err != nil {
			return domain.Competition{}, nil, err
		}
		participants = append(participants, p)
	}
	return comp, participants, nil
}
