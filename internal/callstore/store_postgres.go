package callstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initCallSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initCallSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			caller_phone TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			end_reason TEXT NOT NULL,
			final_node TEXT NOT NULL DEFAULT '',
			service_type TEXT NOT NULL DEFAULT '',
			confirmation_number TEXT NOT NULL DEFAULT '',
			appointment_time TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_ended ON call_records (ended_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_phone ON call_records (caller_phone);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init call schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveCall(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_records (
			id, caller_phone, outcome, end_reason, final_node, service_type,
			confirmation_number, appointment_time, started_at, ended_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
		)
		ON CONFLICT (id) DO UPDATE SET
			caller_phone=EXCLUDED.caller_phone,
			outcome=EXCLUDED.outcome,
			end_reason=EXCLUDED.end_reason,
			final_node=EXCLUDED.final_node,
			service_type=EXCLUDED.service_type,
			confirmation_number=EXCLUDED.confirmation_number,
			appointment_time=EXCLUDED.appointment_time,
			started_at=EXCLUDED.started_at,
			ended_at=EXCLUDED.ended_at`,
		rec.ID,
		rec.CallerPhone,
		rec.Outcome,
		rec.EndReason,
		rec.FinalNode,
		rec.ServiceType,
		rec.ConfirmationNumber,
		rec.AppointmentTime,
		rec.StartedAt,
		rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert call record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, callID string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, caller_phone, outcome, end_reason, final_node, service_type,
		        confirmation_number, appointment_time, started_at, ended_at
		   FROM call_records WHERE id=$1`,
		callID,
	)
	rec, err := scanCallRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get call record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListRecentCalls(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, caller_phone, outcome, end_reason, final_node, service_type,
		        confirmation_number, appointment_time, started_at, ended_at
		   FROM call_records ORDER BY ended_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanCallRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call records: %w", err)
	}
	return out, nil
}

func scanCallRow(row pgx.Row) (Record, error) {
	var rec Record
	if err := row.Scan(
		&rec.ID,
		&rec.CallerPhone,
		&rec.Outcome,
		&rec.EndReason,
		&rec.FinalNode,
		&rec.ServiceType,
		&rec.ConfirmationNumber,
		&rec.AppointmentTime,
		&rec.StartedAt,
		&rec.EndedAt,
	); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
