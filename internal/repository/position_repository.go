package repository

import (
	"context"
	"time"

	"signal-alert/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// PositionRepository mirrors lifecycle state into Postgres for audit
// queries. The JSON snapshot on disk stays the source of truth; writes
// here are best-effort.
type PositionRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPositionRepository(pool PgxPool, tracer trace.Tracer) *PositionRepository {
	return &PositionRepository{pool: pool, tracer: tracer}
}

func (r *PositionRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			close_reason TEXT NOT NULL DEFAULT '',
			close_time TIMESTAMPTZ,
			stop_level DOUBLE PRECISION NOT NULL,
			pnl_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL DEFAULT '',
			last_update TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS position_events (
			id BIGSERIAL PRIMARY KEY,
			position_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			target INT NOT NULL DEFAULT 0,
			level DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (r *PositionRepository) UpsertPosition(ctx context.Context, p *domain.Position) error {
	_, span := r.tracer.Start(ctx, "position-repo.upsert-position")
	defer span.End()

	var closeTime *time.Time
	if !p.CloseTime.IsZero() {
		t := p.CloseTime.UTC()
		closeTime = &t
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO positions
		    (id, symbol, interval, direction, entry_price, entry_time, status,
		     close_reason, close_time, stop_level, pnl_percent, created_by, last_update)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		     entry_price = EXCLUDED.entry_price,
		     entry_time = EXCLUDED.entry_time,
		     status = EXCLUDED.status,
		     close_reason = EXCLUDED.close_reason,
		     close_time = EXCLUDED.close_time,
		     stop_level = EXCLUDED.stop_level,
		     pnl_percent = EXCLUDED.pnl_percent,
		     created_by = EXCLUDED.created_by,
		     last_update = EXCLUDED.last_update`,
		p.Key.ID(),
		p.Key.Symbol,
		p.Key.Interval,
		string(p.Key.Direction),
		p.EntryPrice,
		p.EntryTime.UTC(),
		string(p.Status),
		string(p.CloseReason),
		closeTime,
		p.StopLevel,
		p.PnlPercent,
		p.CreatedBy,
		p.LastUpdate.UTC(),
	)
	return err
}

func (r *PositionRepository) RecordCrossings(ctx context.Context, positionID string, crossings []domain.Crossing) error {
	if len(crossings) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "position-repo.record-crossings")
	defer span.End()

	batch := &pgx.Batch{}
	for _, c := range crossings {
		batch.Queue(
			`INSERT INTO position_events (position_id, kind, target, level, price, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			positionID, string(c.Kind), c.Target, c.Level, c.Price, c.At.UTC(),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range crossings {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListClosed returns recently closed positions, newest first.
func (r *PositionRepository) ListClosed(ctx context.Context, symbol string, limit int) ([]*domain.Position, error) {
	_, span := r.tracer.Start(ctx, "position-repo.list-closed")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, interval, direction, entry_price, entry_time,
		        close_reason, close_time, stop_level, pnl_percent, created_by, last_update
		 FROM positions
		 WHERE status = 'CLOSED' AND ($1 = '' OR symbol = $1)
		 ORDER BY close_time DESC
		 LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p := &domain.Position{Status: domain.StatusClosed}
		var direction, reason string
		var closeTime *time.Time
		if err := rows.Scan(
			&p.Key.Symbol, &p.Key.Interval, &direction, &p.EntryPrice, &p.EntryTime,
			&reason, &closeTime, &p.StopLevel, &p.PnlPercent, &p.CreatedBy, &p.LastUpdate,
		); err != nil {
			return nil, err
		}
		p.Key.Direction = domain.Direction(direction)
		p.CloseReason = domain.CloseReason(reason)
		if closeTime != nil {
			p.CloseTime = closeTime.UTC()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
