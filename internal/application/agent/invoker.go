package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gauntlet/internal/application/engine"
	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

// ClientResolver maps a participant to the transport client for its
// provider. Implemented by the agents adapter registry.
type ClientResolver interface {
	ClientFor(p domain.Participant) (ports.AgentClient, error)
}

// Invoker runs the full decision cycle for one participant: snapshot,
// prompt, agent call, parse, execute, record.
type Invoker struct {
	store   ports.Storage
	market  ports.MarketData
	clients ClientResolver
	engine  *engine.TradingEngine
	builder *ContextBuilder
}

// NewInvoker wires an invoker over the given storage, market feed, client
// registry and trading engine.
func NewInvoker(store ports.Storage, market ports.MarketData, clients ClientResolver, eng *engine.TradingEngine, universe []string) *Invoker {
	return &Invoker{
		store:   store,
		market:  market,
		clients: clients,
		engine:  eng,
		builder: NewContextBuilder(market, universe),
	}
}

// Invoke runs one decision cycle for the participant. Inactive or missing
// participants are skipped without error. Every attempt that reaches the
// transport leaves an invocation row, whatever the outcome.
func (iv *Invoker) Invoke(ctx context.Context, participantID uuid.UUID) error {
	p, err := iv.store.GetParticipant(ctx, participantID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent.Invoke: %w", err)
	}
	if p.Status != domain.ParticipantActive {
		slog.Debug("skipping inactive participant", "participant", p.Name, "status", p.Status)
		return nil
	}

	comp, err := iv.store.GetCompetition(ctx, p.CompetitionID)
	if err != nil {
		return fmt.Errorf("agent.Invoke: competition: %w", err)
	}
	pf, err := iv.store.GetPortfolio(ctx, participantID)
	if err != nil {
		return fmt.Errorf("agent.Invoke: portfolio: %w", err)
	}
	positions, err := iv.store.ListPositionsByParticipant(ctx, participantID)
	if err != nil {
		return fmt.Errorf("agent.Invoke: positions: %w", err)
	}
	ranked, err := iv.store.ListParticipants(ctx, p.CompetitionID)
	if err != nil {
		return fmt.Errorf("agent.Invoke: leaderboard: %w", err)
	}

	now := time.Now().UTC()
	userPayload, marketJSON, portfolioJSON, err := iv.builder.BuildUserPayload(
		ctx, comp, pf, positions, BuildLeaderboard(ranked), now)
	if err != nil {
		return fmt.Errorf("agent.Invoke: %w", err)
	}

	client, err := iv.clients.ClientFor(p)
	if err != nil {
		return fmt.Errorf("agent.Invoke: %w", err)
	}

	inv := domain.Invocation{
		ID:                 uuid.New(),
		ParticipantID:      p.ID,
		CompetitionID:      p.CompetitionID,
		PromptText:         userPayload,
		MarketDataSnapshot: marketJSON,
		PortfolioSnapshot:  portfolioJSON,
		Status:             domain.InvocationPending,
		InvokedAt:          now,
	}
	if err := iv.store.SaveInvocation(ctx, inv); err != nil {
		return fmt.Errorf("agent.Invoke: save invocation: %w", err)
	}

	start := time.Now()
	reply, callErr := client.Invoke(ctx, SystemPrompt(), userPayload, p.AgentConfig)
	inv.ResponseTimeMs = time.Since(start).Milliseconds()
	inv.ResponseText = reply.Text
	inv.PromptTokens = reply.PromptTokens
	inv.ResponseTokens = reply.CompletionTokens
	inv.EstimatedCost = estimateCost(p.AgentConfig, reply)

	if callErr != nil {
		if errors.Is(callErr, context.DeadlineExceeded) {
			inv.Status = domain.InvocationTimeout
		} else {
			inv.Status = domain.InvocationError
		}
		inv.ErrorMessage = callErr.Error()
		slog.Warn("agent call failed",
			"participant", p.Name, "status", inv.Status, "err", callErr)
		return iv.store.UpdateInvocation(ctx, inv)
	}

	decision, parseErr := ParseDecision(reply.Text)
	if parseErr != nil {
		inv.Status = domain.InvocationInvalid
		inv.ErrorMessage = parseErr.Error()
		slog.Warn("unparseable agent reply", "participant", p.Name)
		return iv.store.UpdateInvocation(ctx, inv)
	}
	inv.ParsedDecision, _ = json.Marshal(decision)

	inv.ExecutionResults = iv.executeOrders(ctx, p, inv.ID, decision)
	inv.Status = domain.InvocationSuccess

	slog.Info("invocation complete",
		"participant", p.Name,
		"decision", decision.Decision,
		"orders", len(decision.Orders),
		"response_ms", inv.ResponseTimeMs)
	return iv.store.UpdateInvocation(ctx, inv)
}

// executeOrders runs each order through the trading engine. One order
// failing never stops its siblings.
func (iv *Invoker) executeOrders(ctx context.Context, p domain.Participant, invocationID uuid.UUID, d domain.Decision) []domain.ExecutionResult {
	results := make([]domain.ExecutionResult, 0, len(d.Orders))
	for _, req := range d.Orders {
		outcome, err := iv.engine.Process(ctx, p.CompetitionID, p.ID, invocationID, req)
		res := domain.ExecutionResult{
			OrderID:          outcome.Order.ID.String(),
			Action:           req.Action,
			Symbol:           outcome.Order.Symbol,
			Side:             string(outcome.Order.Side),
			Quantity:         outcome.Order.Quantity.String(),
			Leverage:         outcome.Order.Leverage.String(),
			ValidationPassed: outcome.ValidationPassed,
			RejectionReason:  outcome.Order.RejectionReason,
			Status:           outcome.Order.Status,
		}
		if outcome.Order.ExecutedPrice != nil {
			res.ExecutedPrice = outcome.Order.ExecutedPrice.String()
		}
		if err != nil {
			res.Error = err.Error()
			slog.Error("order execution failed",
				"participant", p.Name, "action", req.Action, "err", err)
		}
		results = append(results, res)
	}
	return results
}

// estimateCost prices the call from the participant's per-million-token
// rates. Unpriced configs estimate zero.
func estimateCost(cfg domain.AgentConfig, reply ports.AgentReply) float64 {
	return float64(reply.PromptTokens)/1e6*cfg.InputCostPerMTok +
		float64(reply.CompletionTokens)/1e6*cfg.OutputCostPerMTok
}
