package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

// SaveOrder inserts an order row, pending or already resolved.
func (s *SQLiteStorage) SaveOrder(ctx context.Context, o domain.Order) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO orders
			(id, participant_id, competition_id, invocation_id, symbol,
			 asset_class, order_type, side, quantity, leverage,
			 requested_price, executed_price, status, rejection_reason,
			 created_at, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID.String(),
		o.ParticipantID.String(),
		o.CompetitionID.String(),
		uuidOrNil(o.InvocationID),
		o.Symbol,
		o.AssetClass,
		string(o.Type),
		string(o.Side),
		exactStr(o.Quantity),
		exactStr(o.Leverage),
		exactPtr(o.RequestedPrice),
		exactPtr(o.ExecutedPrice),
		string(o.Status),
		o.RejectionReason,
		timeStr(o.CreatedAt),
		timePtr(o.ExecutedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder: insert %s: %w", o.ID, err)
	}
	return nil
}

// UpdateOrder persists the resolution of an order: its status, execution
// price and timestamps, or the rejection reason.
func (s *SQLiteStorage) UpdateOrder(ctx context.Context, o domain.Order) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE orders SET
			executed_price = ?, status = ?, rejection_reason = ?, executed_at = ?
		WHERE id = ?`,
		exactPtr(o.ExecutedPrice),
		string(o.Status),
		o.RejectionReason,
		timePtr(o.ExecutedAt),
		o.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateOrder %s: %w", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateOrder %s: %w", o.ID, ports.ErrNotFound)
	}
	return nil
}

// SaveTrade inserts an accounting entry for an executed order.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.Trade) error {
	var posID any
	if t.PositionID != nil {
		posID = t.PositionID.String()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO trades
			(id, order_id, participant_id, position_id, symbol, side,
			 quantity, price, action, leverage, notional_value,
			 margin_impact, realized_pnl, realized_pnl_pct, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(),
		t.OrderID.String(),
		t.ParticipantID.String(),
		posID,
		t.Symbol,
		string(t.Side),
		exactStr(t.Quantity),
		exactStr(t.Price),
		string(t.Action),
		exactStr(t.Leverage),
		moneyStr(t.NotionalValue),
		moneyStr(t.MarginImpact),
		moneyPtr(t.RealizedPnL),
		exactPtr(t.RealizedPnLPct),
		timeStr(t.ExecutedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// ListTrades returns a participant's trades, newest first. limit <= 0 means
// no limit.
func (s *SQLiteStorage) ListTrades(ctx context.Context, participantID uuid.UUID, limit int) ([]domain.Trade, error) {
	query := `
		SELECT id, order_id, participant_id, position_id, symbol, side,
		       quantity, price, action, leverage, notional_value,
		       margin_impact, realized_pnl, realized_pnl_pct, executed_at
		FROM trades
		WHERE participant_id = ?
		ORDER BY executed_at DESC`
	args := []any{participantID.String()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.ListTrades: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListTrades: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(r rowScanner) (domain.Trade, error) {
	var (
		t                               domain.Trade
		id, orderID, partID, side      string
		posID                          sql.NullString
		qty, price, action, lev        string
		notional, impact               string
		realized, realizedPct          sql.NullString
		executed                       string
	)
	if err := r.Scan(&id, &orderID, &partID, &posID, &t.Symbol, &side,
		&qty, &price, &action, &lev, &notional, &impact,
		&realized, &realizedPct, &executed); err != nil {
		return domain.Trade{}, err
	}

	var err error
	if t.ID, err = uuid.Parse(id); err != nil {
		return domain.Trade{}, err
	}
	if t.OrderID, err = uuid.Parse(orderID); err != nil {
		return domain.Trade{}, err
	}
	if t.ParticipantID, err = uuid.Parse(partID); err != nil {
		return domain.Trade{}, err
	}
	if posID.Valid {
		pid, err := uuid.Parse(posID.String)
		if err != nil {
			return domain.Trade{}, err
		}
		t.PositionID = &pid
	}
	t.Side = domain.OrderSide(side)
	t.Action = domain.TradeAction(action)
	if t.Quantity, err = scanDec(qty); err != nil {
		return domain.Trade{}, err
	}
	if t.Price, err = scanDec(price); err != nil {
		return domain.Trade{}, err
	}
	if t.Leverage, err = scanDec(lev); err != nil {
		return domain.Trade{}, err
	}
	if t.NotionalValue, err = scanDec(notional); err != nil {
		return domain.Trade{}, err
	}
	if t.MarginImpact, err = scanDec(impact); err != nil {
		return domain.Trade{}, err
	}
	if t.RealizedPnL, err = scanDecPtr(realized); err != nil {
		return domain.Trade{}, err
	}
	if t.RealizedPnLPct, err = scanDecPtr(realizedPct); err != nil {
		return domain.Trade{}, err
	}
	if t.ExecutedAt, err = scanTime(executed); err != nil {
		return domain.Trade{}, err
	}
	return t, nil
}

func uuidOrNil(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}
