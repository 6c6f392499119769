package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/strogmv/mailrelay/internal/domain"
)

// OutboxRepository stores and retrieves outbox records for reliable delivery.
type OutboxRepository interface {
	// Append persists a record within the transaction carried by ctx.
	Append(ctx context.Context, rec *domain.OutboxRecord) error
	// ListPending returns pending records up to the given limit. Inside a
	// transaction the rows stay locked until it ends.
	ListPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error)
	// MarkSent moves a pending record to sent.
	MarkSent(ctx context.Context, id uuid.UUID) error
	// MarkFailed moves a pending record to failed.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// RecordAttempt notes a failed publish attempt without changing the status.
	RecordAttempt(ctx context.Context, id uuid.UUID, reason string) error
}
