package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

const competitionCols = `id, name, description, status, start_time, end_time,
	invocation_interval_minutes, initial_capital, max_leverage,
	maintenance_margin_pct, allowed_asset_classes, max_participants,
	market_hours_only, created_at, updated_at`

// SaveCompetition inserts a competition row.
func (s *SQLiteStorage) SaveCompetition(ctx context.Context, c domain.Competition) error {
	classes, err := json.Marshal(c.AllowedAssetClasses)
	if err != nil {
		return fmt.Errorf("storage.SaveCompetition: marshal asset classes: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO competitions (`+competitionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(),
		c.Name,
		c.Description,
		string(c.Status),
		timeStr(c.StartTime),
		timeStr(c.EndTime),
		int(c.InvocationInterval.Minutes()),
		moneyStr(c.InitialCapital),
		exactStr(c.MaxLeverage),
		exactStr(c.MaintenanceMarginPct),
		string(classes),
		c.MaxParticipants,
		boolInt(c.MarketHoursOnly),
		timeStr(c.CreatedAt),
		timeStr(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCompetition: insert %s: %w", c.ID, err)
	}
	return nil
}

// GetCompetition returns one competition by id.
func (s *SQLiteStorage) GetCompetition(ctx context.Context, id uuid.UUID) (domain.Competition, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+competitionCols+` FROM competitions WHERE id = ?`, id.String())
	c, err := scanCompetition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Competition{}, fmt.Errorf("storage.GetCompetition %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Competition{}, fmt.Errorf("storage.GetCompetition %s: %w", id, err)
	}
	return c, nil
}

// ListCompetitions returns all competitions, newest first.
func (s *SQLiteStorage) ListCompetitions(ctx context.Context) ([]domain.Competition, error) {
	return s.listCompetitions(ctx,
		`SELECT `+competitionCols+` FROM competitions ORDER BY created_at DESC`)
}

// ListRunningCompetitions returns active competitions whose end time is
// still in the future.
func (s *SQLiteStorage) ListRunningCompetitions(ctx context.Context, now time.Time) ([]domain.Competition, error) {
	return s.listCompetitions(ctx,
		`SELECT `+competitionCols+` FROM competitions
		 WHERE status = 'active' AND end_time > ? ORDER BY created_at`,
		timeStr(now))
}

// UpdateCompetitionStatus transitions a competition's status.
func (s *SQLiteStorage) UpdateCompetitionStatus(ctx context.Context, id uuid.UUID, status domain.CompetitionStatus) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE competitions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), timeStr(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("storage.UpdateCompetitionStatus %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateCompetitionStatus %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// DeleteCompetition removes a competition; everything below it cascades.
func (s *SQLiteStorage) DeleteCompetition(ctx context.Context, id uuid.UUID) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM competitions WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("storage.DeleteCompetition %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStorage) listCompetitions(ctx context.Context, query string, args ...any) ([]domain.Competition, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.listCompetitions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.listCompetitions: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompetition(r rowScanner) (domain.Competition, error) {
	var (
		c                                  domain.Competition
		id, status                         string
		startStr, endStr, created, updated string
		intervalMins                       int
		capStr, levStr, maintStr, classes  string
		marketHours                        int
	)
	if err := r.Scan(&id, &c.Name, &c.Description, &status, &startStr, &endStr,
		&intervalMins, &capStr, &levStr, &maintStr, &classes,
		&c.MaxParticipants, &marketHours, &created, &updated); err != nil {
		return domain.Competition{}, err
	}

	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return domain.Competition{}, err
	}
	c.Status = domain.CompetitionStatus(status)
	c.InvocationInterval = time.Duration(intervalMins) * time.Minute
	c.MarketHoursOnly = marketHours == 1
	if c.StartTime, err = scanTime(startStr); err != nil {
		return domain.Competition{}, err
	}
	if c.EndTime, err = scanTime(endStr); err != nil {
		return domain.Competition{}, err
	}
	if c.CreatedAt, err = scanTime(created); err != nil {
		return domain.Competition{}, err
	}
	if c.UpdatedAt, err = scanTime(updated); err != nil {
		return domain.Competition{}, err
	}
	if c.InitialCapital, err = scanDec(capStr); err != nil {
		return domain.Competition{}, err
	}
	if c.MaxLeverage, err = scanDec(levStr); err != nil {
		return domain.Competition{}, err
	}
	if c.MaintenanceMarginPct, err = scanDec(maintStr); err != nil {
		return domain.Competition{}, err
	}
	if err = json.Unmarshal([]byte(classes), &c.AllowedAssetClasses); err != nil {
		return domain.Competition{}, err
	}
	return c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
