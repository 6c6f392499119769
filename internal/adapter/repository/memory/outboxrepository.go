package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/strogmv/mailrelay/internal/domain"
)

type OutboxRepository struct {
	store *Store
}

func (r *OutboxRepository) Append(ctx context.Context, rec *domain.OutboxRecord) error {
	if rec == nil {
		return fmt.Errorf("outbox record is required")
	}
	cp := *rec
	return r.store.exec(ctx, func(s *Store) error {
		if _, exists := s.outbox[cp.ID]; exists {
			return fmt.Errorf("outbox record %s already exists", cp.ID)
		}
		s.next++
		s.outbox[cp.ID] = cp
		s.seq[cp.ID] = s.next
		return nil
	})
}

// ListPending returns pending records oldest first.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var items []domain.OutboxRecord
	for _, rec := range r.store.outbox {
		if rec.Status == domain.OutboxPending {
			items = append(items, rec)
		}
	}
	slices.SortFunc(items, func(a, b domain.OutboxRecord) int {
		return cmp.Compare(r.store.seq[a.ID], r.store.seq[b.ID])
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Get returns a copy of the record with id.
func (r *OutboxRepository) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.outbox[id]
	if !ok {
		return nil, domain.ErrOutboxRecordNotFound
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
	return r.store.exec(ctx, func(s *Store) error {
		rec, ok := s.outbox[id]
		if !ok {
			return domain.ErrOutboxRecordNotFound
		}
		rec.Attempts++
		rec.LastError = reason
		rec.UpdatedAt = time.Now().UTC()
		s.outbox[id] = rec
		return nil
	})
}

func (r *OutboxRepository) transition(ctx context.Context, id uuid.UUID, next domain.OutboxStatus, reason string) error {
	return r.store.exec(ctx, func(s *Store) error {
		rec, ok := s.outbox[id]
		if !ok {
			return domain.ErrOutboxRecordNotFound
		}
		if err := rec.Transition(next, time.Now().UTC()); err != nil {
			return err
		}
		if reason != "" {
			rec.LastError = reason
		}
		s.outbox[id] = rec
		return nil
	})
}
