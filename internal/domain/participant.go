package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ParticipantStatus is the lifecycle state of an enrolled agent.
type ParticipantStatus string

const (
	ParticipantActive       ParticipantStatus = "active"
	ParticipantLiquidated   ParticipantStatus = "liquidated"
	ParticipantDisqualified ParticipantStatus = "disqualified"
)

// AgentConfig is the per-participant transport configuration passed to the
// agent client on every invocation.
type AgentConfig struct {
	Model          string  `json:"model,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty"`

	// USD per million tokens, used for the invocation cost estimate.
	InputCostPerMTok  float64 `json:"input_cost_per_mtok,omitempty"`
	OutputCostPerMTok float64 `json:"output_cost_per_mtok,omitempty"`
}

// Timeout returns the configured agent call timeout, defaulting to 30s.
func (c AgentConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Participant is one autonomous agent enrolled in one competition.
type Participant struct {
	ID            uuid.UUID
	CompetitionID uuid.UUID

	Name          string // unique within the competition
	AgentProvider string // anthropic, openai, deepseek, qwen, custom
	AgentModel    string
	AgentConfig   AgentConfig
	EndpointURL   string // self-hosted agents only

	Status   ParticipantStatus
	JoinedAt time.Time

	InitialCapital decimal.Decimal // frozen at creation
	CurrentEquity  decimal.Decimal
	PeakEquity     decimal.Decimal
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
}

// PnLPct is the participant's total return over initial capital, in percent.
func (p Participant) PnLPct() decimal.Decimal {
	if p.InitialCapital.IsZero() {
		return decimal.Zero
	}
	return p.CurrentEquity.Sub(p.InitialCapital).
		Div(p.InitialCapital).
		Mul(decimal.NewFromInt(100))
}
