package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/gauntlet/internal/application/engine"
	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

// AgentInvoker runs one full decision cycle for a participant.
type AgentInvoker interface {
	Invoke(ctx context.Context, participantID uuid.UUID) error
}

// Config holds the scheduler clocks.
type Config struct {
	// MarkToMarketInterval is the revaluation sweep cadence.
	MarkToMarketInterval time.Duration
	// DecisionPollInterval is how often competitions are checked for a due
	// decision round. Each competition fires on its own invocation interval.
	DecisionPollInterval time.Duration
	// MaxConcurrentAgents bounds the decision fan-out.
	MaxConcurrentAgents int
}

func (c Config) withDefaults() Config {
	if c.MarkToMarketInterval <= 0 {
		c.MarkToMarketInterval = time.Minute
	}
	if c.DecisionPollInterval <= 0 {
		c.DecisionPollInterval = 30 * time.Second
	}
	if c.MaxConcurrentAgents <= 0 {
		c.MaxConcurrentAgents = 4
	}
	return c
}

// Scheduler drives the two independent clocks of a running competition:
// the mark-to-market sweep and the agent decision rounds.
type Scheduler struct {
	cfg      Config
	store    ports.Storage
	market   ports.MarketData
	invoker  AgentInvoker
	locks    *engine.LockRegistry
	notifier ports.Notifier

	lastRound map[uuid.UUID]time.Time
}

// New creates a scheduler. The notifier may be nil.
func New(cfg Config, store ports.Storage, market ports.MarketData, invoker AgentInvoker, locks *engine.LockRegistry, notifier ports.Notifier) *Scheduler {
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		store:     store,
		market:    market,
		invoker:   invoker,
		locks:     locks,
		notifier:  notifier,
		lastRound: make(map[uuid.UUID]time.Time),
	}
}

// Run drives both loops until the context is cancelled. The loops are
// independent: a slow decision round never delays revaluation.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"mark_to_market_interval", s.cfg.MarkToMarketInterval,
		"decision_poll_interval", s.cfg.DecisionPollInterval,
		"max_concurrent_agents", s.cfg.MaxConcurrentAgents,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.markLoop(ctx) })
	g.Go(func() error { return s.decisionLoop(ctx) })
	return g.Wait()
}

func (s *Scheduler) markLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.MarkToMarketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("mark-to-market loop stopped")
			return nil
		case <-ticker.C:
			if err := engine.MarkToMarket(ctx, s.store, s.market, s.locks); err != nil {
				slog.Error("mark-to-market sweep failed", "err", err)
			}
		}
	}
}

func (s *Scheduler) decisionLoop(ctx context.Context) error {
	// First round immediately so a fresh start does not sit idle.
	if err := s.decisionTick(ctx); err != nil {
		slog.Error("decision tick failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.DecisionPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("decision loop stopped")
			return nil
		case <-ticker.C:
			if err := s.decisionTick(ctx); err != nil {
				slog.Error("decision tick failed", "err", err)
			}
		}
	}
}

// decisionTick completes expired competitions and runs a decision round for
// every running competition whose invocation interval has elapsed.
func (s *Scheduler) decisionTick(ctx context.Context) error {
	now := time.Now().UTC()
	if err := s.completeExpired(ctx, now); err != nil {
		return err
	}

	comps, err := s.store.ListRunningCompetitions(ctx, now)
	if err != nil {
		return fmt.Errorf("scheduler.decisionTick: %w", err)
	}
	for _, comp := range comps {
		if last, ok := s.lastRound[comp.ID]; ok && now.Sub(last) < comp.InvocationInterval {
			continue
		}
		s.lastRound[comp.ID] = now
		s.runRound(ctx, comp)
	}
	return nil
}

// runRound fans out one invocation per active participant, bounded by the
// concurrency limit. A participant failing never blocks the others.
func (s *Scheduler) runRound(ctx context.Context, comp domain.Competition) {
	start := time.Now()
	participants, err := s.store.ListActiveParticipants(ctx, comp.ID)
	if err != nil {
		slog.Error("decision round: list participants", "competition", comp.Name, "err", err)
		return
	}
	if len(participants) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentAgents)
	for _, p := range participants {
		p := p
		g.Go(func() error {
			if err := s.invoker.Invoke(gctx, p.ID); err != nil {
				slog.Error("invocation failed", "participant", p.Name, "err", err)
			}
			return nil
		})
	}
	g.Wait()

	slog.Info("decision round complete",
		"competition", comp.Name,
		"participants", len(participants),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if s.notifier == nil {
		return
	}
	standings, err := s.store.ListParticipants(ctx, comp.ID)
	if err != nil {
		slog.Warn("leaderboard fetch failed", "competition", comp.Name, "err", err)
		return
	}
	if err := s.notifier.PublishLeaderboard(ctx, comp, standings); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

// completeExpired transitions active competitions past their end time.
func (s *Scheduler) completeExpired(ctx context.Context, now time.Time) error {
	comps, err := s.store.ListCompetitions(ctx)
	if err != nil {
		return fmt.Errorf("scheduler.completeExpired: %w", err)
	}
	for _, comp := range comps {
		if comp.Status != domain.CompetitionActive || comp.EndTime.After(now) {
			continue
		}
		if err := s.store.UpdateCompetitionStatus(ctx, comp.ID, domain.CompetitionCompleted); err != nil {
			slog.Error("completing competition failed", "competition", comp.Name, "err", err)
			continue
		}
		delete(s.lastRound, comp.ID)
		slog.Info("competition completed", "competition", comp.Name, "ended", comp.EndTime)
	}
	return nil
}
