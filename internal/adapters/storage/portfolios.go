package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

const portfolioCols = `id, participant_id, cash_balance, equity, margin_used,
	margin_available, realized_pnl, unrealized_pnl, total_pnl,
	current_leverage, margin_level, created_at, updated_at`

// SavePortfolio inserts a portfolio row.
func (s *SQLiteStorage) SavePortfolio(ctx context.Context, pf domain.Portfolio) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO portfolios (`+portfolioCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pf.ID.String(),
		pf.ParticipantID.String(),
		moneyStr(pf.CashBalance),
		moneyStr(pf.Equity),
		moneyStr(pf.MarginUsed),
		moneyStr(pf.MarginAvailable),
		moneyStr(pf.RealizedPnL),
		moneyStr(pf.UnrealizedPnL),
		moneyStr(pf.TotalPnL),
		exactStr(pf.CurrentLeverage),
		exactPtr(pf.MarginLevel),
		timeStr(pf.CreatedAt),
		timeStr(pf.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePortfolio: insert %s: %w", pf.ID, err)
	}
	return nil
}

// GetPortfolio returns a participant's portfolio.
func (s *SQLiteStorage) GetPortfolio(ctx context.Context, participantID uuid.UUID) (domain.Portfolio, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+portfolioCols+` FROM portfolios WHERE participant_id = ?`,
		participantID.String())
	pf, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Portfolio{}, fmt.Errorf("storage.GetPortfolio participant %s: %w", participantID, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("storage.GetPortfolio participant %s: %w", participantID, err)
	}
	return pf, nil
}

// UpdatePortfolio persists all portfolio aggregates.
func (s *SQLiteStorage) UpdatePortfolio(ctx context.Context, pf domain.Portfolio) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE portfolios SET
			cash_balance = ?, equity = ?, margin_used = ?, margin_available = ?,
			realized_pnl = ?, unrealized_pnl = ?, total_pnl = ?,
			current_leverage = ?, margin_level = ?, updated_at = ?
		WHERE id = ?`,
		moneyStr(pf.CashBalance),
		moneyStr(pf.Equity),
		moneyStr(pf.MarginUsed),
		moneyStr(pf.MarginAvailable),
		moneyStr(pf.RealizedPnL),
		moneyStr(pf.UnrealizedPnL),
		moneyStr(pf.TotalPnL),
		exactStr(pf.CurrentLeverage),
		exactPtr(pf.MarginLevel),
		timeStr(time.Now()),
		pf.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdatePortfolio %s: %w", pf.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdatePortfolio %s: %w", pf.ID, ports.ErrNotFound)
	}
	return nil
}

// SaveHistoryPoint appends a portfolio snapshot row.
func (s *SQLiteStorage) SaveHistoryPoint(ctx context.Context, h domain.HistoryPoint) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO portfolio_history
			(participant_id, equity, cash_balance, margin_used,
			 realized_pnl, unrealized_pnl, total_pnl, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ParticipantID.String(),
		moneyStr(h.Equity),
		moneyStr(h.CashBalance),
		moneyStr(h.MarginUsed),
		moneyStr(h.RealizedPnL),
		moneyStr(h.UnrealizedPnL),
		moneyStr(h.TotalPnL),
		timeStr(h.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveHistoryPoint participant %s: %w", h.ParticipantID, err)
	}
	return nil
}

// ListHistory returns snapshots in [from, to] ascending by recorded_at.
func (s *SQLiteStorage) ListHistory(ctx context.Context, participantID uuid.UUID, from, to time.Time) ([]domain.HistoryPoint, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, participant_id, equity, cash_balance, margin_used,
		       realized_pnl, unrealized_pnl, total_pnl, recorded_at
		FROM portfolio_history
		WHERE participant_id = ? AND recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at`,
		participantID.String(), timeStr(from), timeStr(to))
	if err != nil {
		return nil, fmt.Errorf("storage.ListHistory: query: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryPoint
	for rows.Next() {
		var (
			h                                        domain.HistoryPoint
			pid, eq, cash, mu, rp, up, tp, recorded string
		)
		if err := rows.Scan(&h.ID, &pid, &eq, &cash, &mu, &rp, &up, &tp, &recorded); err != nil {
			return nil, fmt.Errorf("storage.ListHistory: scan: %w", err)
		}
		if h.ParticipantID, err = uuid.Parse(pid); err != nil {
			return nil, err
		}
		if h.Equity, err = scanDec(eq); err != nil {
			return nil, err
		}
		if h.CashBalance, err = scanDec(cash); err != nil {
			return nil, err
		}
		if h.MarginUsed, err = scanDec(mu); err != nil {
			return nil, err
		}
		if h.RealizedPnL, err = scanDec(rp); err != nil {
			return nil, err
		}
		if h.UnrealizedPnL, err = scanDec(up); err != nil {
			return nil, err
		}
		if h.TotalPnL, err = scanDec(tp); err != nil {
			return nil, err
		}
		if h.RecordedAt, err = scanTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanPortfolio(r rowScanner) (domain.Portfolio, error) {
	var (
		pf                                       domain.Portfolio
		id, pid                                  string
		cash, eq, mu, ma, rp, up, tp, lev        string
		marginLevel                              sql.NullString
		created, updated                         string
	)
	if err := r.Scan(&id, &pid, &cash, &eq, &mu, &ma, &rp, &up, &tp,
		&lev, &marginLevel, &created, &updated); err != nil {
		return domain.Portfolio{}, err
	}

	var err error
	if pf.ID, err = uuid.Parse(id); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.ParticipantID, err = uuid.Parse(pid); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.CashBalance, err = scanDec(cash); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.Equity, err = scanDec(eq); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.MarginUsed, err = scanDec(mu); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.MarginAvailable, err = scanDec(ma); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.RealizedPnL, err = scanDec(rp); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.UnrealizedPnL, err = scanDec(up); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.TotalPnL, err = scanDec(tp); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.CurrentLeverage, err = scanDec(lev); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.MarginLevel, err = scanDecPtr(marginLevel); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.CreatedAt, err = scanTime(created); err != nil {
		return domain.Portfolio{}, err
	}
	if pf.UpdatedAt, err = scanTime(updated); err != nil {
		return domain.Portfolio{}, err
	}
	return pf, nil
}
