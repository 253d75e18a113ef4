package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvocationStatus is the outcome of one agent round trip.
type InvocationStatus string

const (
	InvocationPending InvocationStatus = "pending"
	InvocationSuccess InvocationStatus = "success"
	InvocationTimeout InvocationStatus = "timeout"
	InvocationError   InvocationStatus = "error"
	InvocationInvalid InvocationStatus = "invalid_response"
)

// ExecutionResult records the outcome of a single order from a parsed
// decision. One entry per order, in reply order.
type ExecutionResult struct {
	OrderID          string      `json:"order_id"`
	Action           TradeAction `json:"action"`
	Symbol           string      `json:"symbol"`
	Side             string      `json:"side,omitempty"`
	Quantity         string      `json:"quantity,omitempty"`
	Leverage         string      `json:"leverage,omitempty"`
	ValidationPassed bool        `json:"validation_passed"`
	RejectionReason  string      `json:"rejection_reason,omitempty"`
	Status           OrderStatus `json:"status"`
	ExecutedPrice    string      `json:"executed_price,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// Invocation is one record per agent call: snapshot → call → reply →
// execution. Snapshots and blobs are stored as raw JSON.
type Invocation struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID
	CompetitionID uuid.UUID

	PromptText         string
	PromptTokens       int
	ResponseTokens     int
	MarketDataSnapshot []byte // JSON
	PortfolioSnapshot  []byte // JSON

	ResponseText     string
	ParsedDecision   []byte // JSON of the parsed Decision
	ExecutionResults []ExecutionResult

	Status         InvocationStatus
	ErrorMessage   string
	ResponseTimeMs int64
	EstimatedCost  float64 // USD

	InvokedAt time.Time
}
