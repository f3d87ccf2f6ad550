package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All monetary values are stored as NUMERIC for exact decimal
// precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) RecordTrade(ctx context.Context, r *TradeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, session_id, segment, security_id, side, kind, quantity, price, fee, realized_delta, reason, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12)`,
		r.ID, r.SessionID, r.Segment, r.SecurityID, string(r.Side), string(r.Kind),
		r.Quantity, r.Price.String(), r.Fee.String(), r.RealizedDelta.String(),
		string(r.Reason), r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecordEquity(ctx context.Context, p *EquityPoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO equity_curve (session_id, balance, unrealized_pnl, total_equity, timestamp)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5)`,
		p.SessionID, p.Balance.String(), p.UnrealizedPnL.String(),
		p.TotalEquity.String(), p.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record equity for session %s: %w", p.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) TradesBySession(ctx context.Context, sessionID string) ([]TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, segment, security_id, side, kind, quantity,
		        price::TEXT, fee::TEXT, realized_delta::TEXT, reason, timestamp
		 FROM trades WHERE session_id = $1 ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TradeRecord
	for rows.Next() {
		var r TradeRecord
		var side, kind, reason string
		var priceS, feeS, realizedS string

		if err := rows.Scan(&r.ID, &r.SessionID, &r.Segment, &r.SecurityID,
			&side, &kind, &r.Quantity,
			&priceS, &feeS, &realizedS, &reason, &r.Timestamp); err != nil {
			return nil, err
		}

		r.Side = model.Side(side)
		r.Kind = model.IntentKind(kind)
		r.Reason = model.ExitReason(reason)
		r.Price, _ = decimal.NewFromString(priceS)
		r.Fee, _ = decimal.NewFromString(feeS)
		r.RealizedDelta, _ = decimal.NewFromString(realizedS)

		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) EquityCurve(ctx context.Context, sessionID string) ([]EquityPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, balance::TEXT, unrealized_pnl::TEXT, total_equity::TEXT, timestamp
		 FROM equity_curve WHERE session_id = $1 ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []EquityPoint
	for rows.Next() {
		var p EquityPoint
		var balS, unrealS, totalS string

		if err := rows.Scan(&p.SessionID, &balS, &unrealS, &totalS, &p.Timestamp); err != nil {
			return nil, err
		}

		p.Balance, _ = decimal.NewFromString(balS)
		p.UnrealizedPnL, _ = decimal.NewFromString(unrealS)
		p.TotalEquity, _ = decimal.NewFromString(totalS)

		points = append(points, p)
	}
	return points, rows.Err()
}
