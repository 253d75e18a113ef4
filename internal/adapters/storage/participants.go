package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

const participantCols = `id, competition_id, name, agent_provider, agent_model,
	agent_config, endpoint_url, status, joined_at, initial_capital,
	current_equity, peak_equity, total_trades, winning_trades, losing_trades`

// SaveParticipant inserts a participant row.
func (s *SQLiteStorage) SaveParticipant(ctx context.Context, p domain.Participant) error {
	cfg, err := json.Marshal(p.AgentConfig)
	if err != nil {
		return fmt.Errorf("storage.SaveParticipant: marshal agent config: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO participants (`+participantCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(),
		p.CompetitionID.String(),
		p.Name,
		p.AgentProvider,
		p.AgentModel,
		string(cfg),
		p.EndpointURL,
		string(p.Status),
		timeStr(p.JoinedAt),
		moneyStr(p.InitialCapital),
		moneyStr(p.CurrentEquity),
		moneyStr(p.PeakEquity),
		p.TotalTrades,
		p.WinningTrades,
		p.LosingTrades,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveParticipant: insert %s: %w", p.ID, err)
	}
	return nil
}

// GetParticipant returns one participant by id.
func (s *SQLiteStorage) GetParticipant(ctx context.Context, id uuid.UUID) (domain.Participant, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE id = ?`, id.String())
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, fmt.Errorf("storage.GetParticipant %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("storage.GetParticipant %s: %w", id, err)
	}
	return p, nil
}

// ListParticipants returns a competition's participants in leaderboard
// order: current equity descending. TEXT decimals don't sort numerically,
// so ordering happens by CAST.
func (s *SQLiteStorage) ListParticipants(ctx context.Context, competitionID uuid.UUID) ([]domain.Participant, error) {
	return s.listParticipants(ctx, `
		SELECT `+participantCols+` FROM participants
		WHERE competition_id = ?
		ORDER BY CAST(current_equity AS REAL) DESC`,
		competitionID.String())
}

// ListActiveParticipants returns only the active participants of a competition.
func (s *SQLiteStorage) ListActiveParticipants(ctx context.Context, competitionID uuid.UUID) ([]domain.Participant, error) {
	return s.listParticipants(ctx, `
		SELECT `+participantCols+` FROM participants
		WHERE competition_id = ? AND status = 'active'
		ORDER BY joined_at`,
		competitionID.String())
}

// UpdateParticipant persists the mutable participant fields.
func (s *SQLiteStorage) UpdateParticipant(ctx context.Context, p domain.Participant) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE participants SET
			status = ?, current_equity = ?, peak_equity = ?,
			total_trades = ?, winning_trades = ?, losing_trades = ?
		WHERE id = ?`,
		string(p.Status),
		moneyStr(p.CurrentEquity),
		moneyStr(p.PeakEquity),
		p.TotalTrades,
		p.WinningTrades,
		p.LosingTrades,
		p.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateParticipant %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateParticipant %s: %w", p.ID, ports.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) listParticipants(ctx context.Context, query string, args ...any) ([]domain.Participant, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.listParticipants: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.listParticipants: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanParticipant(r rowScanner) (domain.Participant, error) {
	var (
		p                                   domain.Participant
		id, compID, status, cfg, joined     string
		capStr, equityStr, peakStr          string
	)
	if err := r.Scan(&id, &compID, &p.Name, &p.AgentProvider, &p.AgentModel,
		&cfg, &p.EndpointURL, &status, &joined, &capStr,
		&equityStr, &peakStr, &p.TotalTrades, &p.WinningTrades, &p.LosingTrades); err != nil {
		return domain.Participant{}, err
	}

	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return domain.Participant{}, err
	}
	if p.CompetitionID, err = uuid.Parse(compID); err != nil {
		return domain.Participant{}, err
	}
	p.Status = domain.ParticipantStatus(status)
	if err = json.Unmarshal([]byte(cfg), &p.AgentConfig); err != nil {
		return domain.Participant{}, err
	}
	if p.JoinedAt, err = scanTime(joined); err != nil {
		return domain.Participant{}, err
	}
	if p.InitialCapital, err = scanDec(capStr); err != nil {
		return domain.Participant{}, err
	}
	if p.CurrentEquity, err = scanDec(equityStr); err != nil {
		return domain.Participant{}, err
	}
	if p.PeakEquity, err = scanDec(peakStr); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}
