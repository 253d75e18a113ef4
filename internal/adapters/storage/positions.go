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

const positionCols = `id, portfolio_id, participant_id, symbol, asset_class,
	side, quantity, entry_price, current_price, leverage, margin_required,
	notional_value, unrealized_pnl, unrealized_pnl_pct, exit_plan,
	opened_at, updated_at`

// SavePosition inserts a position row.
func (s *SQLiteStorage) SavePosition(ctx context.Context, pos domain.Position) error {
	plan, err := marshalExitPlan(pos.ExitPlan)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: marshal exit plan: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO positions (`+positionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.ID.String(),
		pos.PortfolioID.String(),
		pos.ParticipantID.String(),
		pos.Symbol,
		pos.AssetClass,
		string(pos.Side),
		exactStr(pos.Quantity),
		exactStr(pos.EntryPrice),
		exactStr(pos.CurrentPrice),
		exactStr(pos.Leverage),
		moneyStr(pos.MarginRequired),
		moneyStr(pos.NotionalValue),
		moneyStr(pos.UnrealizedPnL),
		exactStr(pos.UnrealizedPnLPct),
		plan,
		timeStr(pos.OpenedAt),
		timeStr(pos.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: insert %s: %w", pos.ID, err)
	}
	return nil
}

// GetPosition returns one position by id.
func (s *SQLiteStorage) GetPosition(ctx context.Context, id uuid.UUID) (domain.Position, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = ?`, id.String())
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("storage.GetPosition %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage.GetPosition %s: %w", id, err)
	}
	return pos, nil
}

// FindPositionBySymbol is the legacy close fallback: a participant's
// position in a symbol, oldest first if several exist.
func (s *SQLiteStorage) FindPositionBySymbol(ctx context.Context, participantID uuid.UUID, symbol string) (domain.Position, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+positionCols+` FROM positions
		WHERE participant_id = ? AND symbol = ?
		ORDER BY opened_at LIMIT 1`,
		participantID.String(), symbol)
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("storage.FindPositionBySymbol %s %s: %w",
			participantID, symbol, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage.FindPositionBySymbol %s %s: %w",
			participantID, symbol, err)
	}
	return pos, nil
}

// ListPositionsByPortfolio returns a portfolio's open positions.
func (s *SQLiteStorage) ListPositionsByPortfolio(ctx context.Context, portfolioID uuid.UUID) ([]domain.Position, error) {
	return s.listPositions(ctx,
		`SELECT `+positionCols+` FROM positions WHERE portfolio_id = ? ORDER BY opened_at`,
		portfolioID.String())
}

// ListPositionsByParticipant returns a participant's open positions.
func (s *SQLiteStorage) ListPositionsByParticipant(ctx context.Context, participantID uuid.UUID) ([]domain.Position, error) {
	return s.listPositions(ctx,
		`SELECT `+positionCols+` FROM positions WHERE participant_id = ? ORDER BY opened_at`,
		participantID.String())
}

// ListOpenPositions returns every open position, for the mark-to-market sweep.
func (s *SQLiteStorage) ListOpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.listPositions(ctx,
		`SELECT `+positionCols+` FROM positions ORDER BY opened_at`)
}

// UpdatePosition persists a revalued position.
func (s *SQLiteStorage) UpdatePosition(ctx context.Context, pos domain.Position) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE positions SET
			current_price = ?, notional_value = ?,
			unrealized_pnl = ?, unrealized_pnl_pct = ?, updated_at = ?
		WHERE id = ?`,
		exactStr(pos.CurrentPrice),
		moneyStr(pos.NotionalValue),
		moneyStr(pos.UnrealizedPnL),
		exactStr(pos.UnrealizedPnLPct),
		timeStr(time.Now()),
		pos.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdatePosition %s: %w", pos.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdatePosition %s: %w", pos.ID, ports.ErrNotFound)
	}
	return nil
}

// DeletePosition removes a closed position. trades.position_id goes NULL
// via the foreign key.
func (s *SQLiteStorage) DeletePosition(ctx context.Context, id uuid.UUID) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM positions WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("storage.DeletePosition %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStorage) listPositions(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.listPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.listPositions: scan: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func scanPosition(r rowScanner) (domain.Position, error) {
	var (
		pos                                    domain.Position
		id, pfID, partID, side                 string
		qty, entry, cur, lev, margin, notional string
		upnl, upnlPct                          string
		plan                                   sql.NullString
		opened, updated                        string
	)
	if err := r.Scan(&id, &pfID, &partID, &pos.Symbol, &pos.AssetClass,
		&side, &qty, &entry, &cur, &lev, &margin, &notional,
		&upnl, &upnlPct, &plan, &opened, &updated); err != nil {
		return domain.Position{}, err
	}

	var err error
	if pos.ID, err = uuid.Parse(id); err != nil {
		return domain.Position{}, err
	}
	if pos.PortfolioID, err = uuid.Parse(pfID); err != nil {
		return domain.Position{}, err
	}
	if pos.ParticipantID, err = uuid.Parse(partID); err != nil {
		return domain.Position{}, err
	}
	pos.Side = domain.PositionSide(side)
	if pos.Quantity, err = scanDec(qty); err != nil {
		return domain.Position{}, err
	}
	if pos.EntryPrice, err = scanDec(entry); err != nil {
		return domain.Position{}, err
	}
	if pos.CurrentPrice, err = scanDec(cur); err != nil {
		return domain.Position{}, err
	}
	if pos.Leverage, err = scanDec(lev); err != nil {
		return domain.Position{}, err
	}
	if pos.MarginRequired, err = scanDec(margin); err != nil {
		return domain.Position{}, err
	}
	if pos.NotionalValue, err = scanDec(notional); err != nil {
		return domain.Position{}, err
	}
	if pos.UnrealizedPnL, err = scanDec(upnl); err != nil {
		return domain.Position{}, err
	}
	if pos.UnrealizedPnLPct, err = scanDec(upnlPct); err != nil {
		return domain.Position{}, err
	}
	if plan.Valid {
		var ep domain.ExitPlan
		if err := json.Unmarshal([]byte(plan.String), &ep); err != nil {
			return domain.Position{}, err
		}
		pos.ExitPlan = &ep
	}
	if pos.OpenedAt, err = scanTime(opened); err != nil {
		return domain.Position{}, err
	}
	if pos.UpdatedAt, err = scanTime(updated); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

func marshalExitPlan(ep *domain.ExitPlan) (any, error) {
	if ep == nil {
		return nil, nil
	}
	b, err := json.Marshal(ep)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
