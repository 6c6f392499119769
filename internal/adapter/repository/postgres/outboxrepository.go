package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/port"
)

const outboxColumns = "id, payload, status, attempts, last_error, created_at, updated_at"

type OutboxRepository struct {
	DB *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{DB: pool}
}

func (r *OutboxRepository) Append(ctx context.Context, rec *domain.OutboxRecord) error {
	exec := getExecutor(ctx, r.DB)
	_, err := exec.Exec(ctx,
		"INSERT INTO outbox ("+outboxColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		rec.ID, []byte(rec.Payload), rec.Status.String(), rec.Attempts, rec.LastError, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

// ListPending locks up to limit pending rows, skipping rows another relay holds.
// Call it inside WithTx so the locks last until the batch is marked.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	exec := getExecutor(ctx, r.DB)
	rows, err := exec.Query(ctx,
		"SELECT "+outboxColumns+" FROM outbox WHERE status = 'pending' ORDER BY created_at LIMIT $1 FOR UPDATE SKIP LOCKED",
		limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()
	var items []domain.OutboxRecord
	for rows.Next() {
		rec, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// Get returns the record with id regardless of status.
func (r *OutboxRepository) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	exec := getExecutor(ctx, r.DB)
	rec, err := scanOutbox(exec.QueryRow(ctx, "SELECT "+outboxColumns+" FROM outbox WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOutboxRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, domain.OutboxSent, "")
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.transition(ctx, id, domain.OutboxFailed, reason)
}

func (r *OutboxRepository) RecordAttempt(ctx context.Context, id uuid.UUID, reason string) error {
	exec := getExecutor(ctx, r.DB)
	tag, err := exec.Exec(ctx,
		"UPDATE outbox SET attempts = attempts + 1, last_error = $2, updated_at = NOW() WHERE id = $1",
		id, reason)
	if err != nil {
		return fmt.Errorf("record outbox attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxRecordNotFound
	}
	return nil
}

// transition only updates pending rows; a miss is resolved into not-found or
// an invalid transition.
func (r *OutboxRepository) transition(ctx context.Context, id uuid.UUID, next domain.OutboxStatus, reason string) error {
	exec := getExecutor(ctx, r.DB)
	tag, err := exec.Exec(ctx,
		"UPDATE outbox SET status = $2, last_error = COALESCE(NULLIF($3, ''), last_error), updated_at = NOW() WHERE id = $1 AND status = 'pending'",
		id, next.String(), reason)
	if err != nil {
		return fmt.Errorf("mark outbox %s: %w", next, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var current string
	err = exec.QueryRow(ctx, "SELECT status FROM outbox WHERE id = $1", id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrOutboxRecordNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, next)
}

func scanOutbox(row pgx.Row) (domain.OutboxRecord, error) {
	var (
		rec     domain.OutboxRecord
		payload []byte
		status  string
	)
	if err := row.Scan(&rec.ID, &payload, &status, &rec.Attempts, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	st, err := domain.ParseOutboxStatus(status)
	if err != nil {
		return rec, err
	}
	rec.Payload = payload
	rec.Status = st
	return rec, nil
}

var _ port.OutboxRepository = (*OutboxRepository)(nil)
