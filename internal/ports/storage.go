package ports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the single authoritative store for the simulation. Every write
// that mutates a portfolio or its positions runs inside WithTx scoped to at
// most one participant.
type Storage interface {
	// WithTx runs fn against a transaction-backed view of the store.
	// An error from fn rolls the transaction back.
	WithTx(ctx context.Context, fn func(Storage) error) error

	// Competitions
	SaveCompetition(ctx context.Context, c domain.Competition) error
	GetCompetition(ctx context.Context, id uuid.UUID) (domain.Competition, error)
	ListCompetitions(ctx context.Context) ([]domain.Competition, error)
	ListRunningCompetitions(ctx context.Context, now time.Time) ([]domain.Competition, error)
	UpdateCompetitionStatus(ctx context.Context, id uuid.UUID, status domain.CompetitionStatus) error
	DeleteCompetition(ctx context.Context, id uuid.UUID) error

	// Participants
	SaveParticipant(ctx context.Context, p domain.Participant) error
	GetParticipant(ctx context.Context, id uuid.UUID) (domain.Participant, error)
	// ListParticipants returns a competition's participants ordered by
	// current equity descending (leaderboard order).
	ListParticipants(ctx context.Context, competitionID uuid.UUID) ([]domain.Participant, error)
	ListActiveParticipants(ctx context.Context, competitionID uuid.UUID) ([]domain.Participant, error)
	// UpdateParticipant persists the mutable fields: status, equity,
	// peak equity and the trade counters.
	UpdateParticipant(ctx context.Context, p domain.Participant) error

	// Portfolios
	SavePortfolio(ctx context.Context, pf domain.Portfolio) error
	GetPortfolio(ctx context.Context, participantID uuid.UUID) (domain.Portfolio, error)
	UpdatePortfolio(ctx context.Context, pf domain.Portfolio) error

	// Positions
	SavePosition(ctx context.Context, pos domain.Position) error
	GetPosition(ctx context.Context, id uuid.UUID) (domain.Position, error)
	FindPositionBySymbol(ctx context.Context, participantID uuid.UUID, symbol string) (domain.Position, error)
	ListPositionsByPortfolio(ctx context.Context, portfolioID uuid.UUID) ([]domain.Position, error)
	ListPositionsByParticipant(ctx context.Context, participantID uuid.UUID) ([]domain.Position, error)
	// ListOpenPositions returns every open position across all
	// participants, for the mark-to-market sweep.
	ListOpenPositions(ctx context.Context) ([]domain.Position, error)
	UpdatePosition(ctx context.Context, pos domain.Position) error
	DeletePosition(ctx context.Context, id uuid.UUID) error

	// Orders and trades
	SaveOrder(ctx context.Context, o domain.Order) error
	UpdateOrder(ctx context.Context, o domain.Order) error
	SaveTrade(ctx context.Context, t domain.Trade) error
	ListTrades(ctx context.Context, participantID uuid.UUID, limit int) ([]domain.Trade, error)

	// Invocations
	SaveInvocation(ctx context.Context, inv domain.Invocation) error
	UpdateInvocation(ctx context.Context, inv domain.Invocation) error
	ListInvocations(ctx context.Context, participantID uuid.UUID, limit int) ([]domain.Invocation, error)

	// Portfolio history
	SaveHistoryPoint(ctx context.Context, h domain.HistoryPoint) error
	ListHistory(ctx context.Context, participantID uuid.UUID, from, to time.Time) ([]domain.HistoryPoint, error)

	Close() error
}
