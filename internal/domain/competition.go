package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CompetitionStatus is the lifecycle state of a competition.
type CompetitionStatus string

const (
	CompetitionPending   CompetitionStatus = "pending"
	CompetitionActive    CompetitionStatus = "active"
	CompetitionCompleted CompetitionStatus = "completed"
	CompetitionCancelled CompetitionStatus = "cancelled"
)

// Competition is a time-bounded simulation: a set of agents trading CFDs
// against the same rules until end time or liquidation.
type Competition struct {
	ID          uuid.UUID
	Name        string
	Description string
	Status      CompetitionStatus

	StartTime          time.Time
	EndTime            time.Time
	InvocationInterval time.Duration

	// Trading rules
	InitialCapital       decimal.Decimal
	MaxLeverage          decimal.Decimal // 1–100
	MaintenanceMarginPct decimal.Decimal // must be < 100/MaxLeverage
	AllowedAssetClasses  []string
	MaxParticipants      int
	MarketHoursOnly      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InitialMarginPct is the margin an opener puts up as a fraction of notional,
// implied by the leverage cap: 100 / max_leverage.
func (c Competition) InitialMarginPct() decimal.Decimal {
	return decimal.NewFromInt(100).Div(c.MaxLeverage)
}

// IsRunning reports whether the competition is accepting decision ticks.
func (c Competition) IsRunning(now time.Time) bool {
	return c.Status == CompetitionActive && now.Before(c.EndTime)
}

// Validate checks the competition's rule invariants.
func (c Competition) Validate() error {
	if !c.EndTime.After(c.StartTime) {
		return ErrInvalidCompetition("end_time must be after start_time")
	}
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	if c.MaxLeverage.LessThan(one) || c.MaxLeverage.GreaterThan(hundred) {
		return ErrInvalidCompetition("max_leverage must be between 1 and 100")
	}
	// Maintenance must sit strictly below the initial margin implied by
	// max leverage, otherwise every fresh position liquidates immediately.
	if c.MaintenanceMarginPct.GreaterThanOrEqual(c.InitialMarginPct()) {
		return ErrInvalidCompetition("maintenance_margin_pct must be below 100/max_leverage")
	}
	return nil
}

// ErrInvalidCompetition marks a competition that violates its rule invariants.
type ErrInvalidCompetition string

func (e ErrInvalidCompetition) Error() string {
	return "invalid competition: " + string(e)
}
