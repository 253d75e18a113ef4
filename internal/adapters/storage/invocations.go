package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

const invocationCols = `id, participant_id, competition_id, prompt_text,
	prompt_tokens, response_tokens, market_data_snapshot, portfolio_snapshot,
	response_text, parsed_decision, execution_results, status, error_message,
	response_time_ms, estimated_cost, invoked_at`

// SaveInvocation inserts the pending invocation row written before the
// agent call goes out, so a crashed call still leaves a trace.
func (s *SQLiteStorage) SaveInvocation(ctx context.Context, inv domain.Invocation) error {
	results, err := marshalResults(inv.ExecutionResults)
	if err != nil {
		return fmt.Errorf("storage.SaveInvocation: marshal results: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO invocations (`+invocationCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(),
		inv.ParticipantID.String(),
		inv.CompetitionID.String(),
		inv.PromptText,
		inv.PromptTokens,
		inv.ResponseTokens,
		jsonBlob(inv.MarketDataSnapshot),
		jsonBlob(inv.PortfolioSnapshot),
		inv.ResponseText,
		jsonBlob(inv.ParsedDecision),
		results,
		string(inv.Status),
		inv.ErrorMessage,
		inv.ResponseTimeMs,
		inv.EstimatedCost,
		timeStr(inv.InvokedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveInvocation: insert %s: %w", inv.ID, err)
	}
	return nil
}

// UpdateInvocation persists the outcome of a finished invocation.
func (s *SQLiteStorage) UpdateInvocation(ctx context.Context, inv domain.Invocation) error {
	results, err := marshalResults(inv.ExecutionResults)
	if err != nil {
		return fmt.Errorf("storage.UpdateInvocation: marshal results: %w", err)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE invocations SET
			prompt_tokens = ?, response_tokens = ?, response_text = ?,
			parsed_decision = ?, execution_results = ?, status = ?,
			error_message = ?, response_time_ms = ?, estimated_cost = ?
		WHERE id = ?`,
		inv.PromptTokens,
		inv.ResponseTokens,
		inv.ResponseText,
		jsonBlob(inv.ParsedDecision),
		results,
		string(inv.Status),
		inv.ErrorMessage,
		inv.ResponseTimeMs,
		inv.EstimatedCost,
		inv.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateInvocation %s: %w", inv.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateInvocation %s: %w", inv.ID, ports.ErrNotFound)
	}
	return nil
}

// ListInvocations returns a participant's invocations, newest first.
// limit <= 0 means no limit.
func (s *SQLiteStorage) ListInvocations(ctx context.Context, participantID uuid.UUID, limit int) ([]domain.Invocation, error) {
	query := `
		SELECT ` + invocationCols + `
		FROM invocations
		WHERE participant_id = ?
		ORDER BY invoked_at DESC`
	args := []any{participantID.String()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.ListInvocations: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListInvocations: scan: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvocation(r rowScanner) (domain.Invocation, error) {
	var (
		inv                      domain.Invocation
		id, partID, compID       string
		market, portfolio        sql.NullString
		decision, results        sql.NullString
		status, invoked          string
	)
	if err := r.Scan(&id, &partID, &compID, &inv.PromptText,
		&inv.PromptTokens, &inv.ResponseTokens, &market, &portfolio,
		&inv.ResponseText, &decision, &results, &status, &inv.ErrorMessage,
		&inv.ResponseTimeMs, &inv.EstimatedCost, &invoked); err != nil {
		return domain.Invocation{}, err
	}

	var err error
	if inv.ID, err = uuid.Parse(id); err != nil {
		return domain.Invocation{}, err
	}
	if inv.ParticipantID, err = uuid.Parse(partID); err != nil {
		return domain.Invocation{}, err
	}
	if inv.CompetitionID, err = uuid.Parse(compID); err != nil {
		return domain.Invocation{}, err
	}
	inv.Status = domain.InvocationStatus(status)
	if market.Valid {
		inv.MarketDataSnapshot = []byte(market.String)
	}
	if portfolio.Valid {
		inv.PortfolioSnapshot = []byte(portfolio.String)
	}
	if decision.Valid {
		inv.ParsedDecision = []byte(decision.String)
	}
	if results.Valid {
		if err := json.Unmarshal([]byte(results.String), &inv.ExecutionResults); err != nil {
			return domain.Invocation{}, err
		}
	}
	if inv.InvokedAt, err = scanTime(invoked); err != nil {
		return domain.Invocation{}, err
	}
	return inv, nil
}

func marshalResults(results []domain.ExecutionResult) (any, error) {
	if len(results) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
