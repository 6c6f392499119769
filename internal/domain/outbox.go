package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the lifecycle state of an outbox record.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// ParseOutboxStatus validates and converts a raw string status.
func ParseOutboxStatus(raw string) (OutboxStatus, error) {
	status := OutboxStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxPending, OutboxSent, OutboxFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from s to next is allowed.
// Only pending records move, and only forward.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	if s != OutboxPending {
		return false
	}
	return next == OutboxSent || next == OutboxFailed
}

func (s OutboxStatus) String() string {
	return string(s)
}

// OutboxRecord is a pending delivery intent written in the same transaction
// as the business change that requires it.
type OutboxRecord struct {
	ID        uuid.UUID
	Payload   json.RawMessage
	Status    OutboxStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOutboxRecord builds a pending record whose payload is the envelope for id.
// The envelope's MessageID is forced to the record id so every publish of the
// record carries the same deduplication key.
func NewOutboxRecord(id uuid.UUID, env DeliveryEnvelope) (*OutboxRecord, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("outbox record id is required")
	}
	env.MessageID = id.String()
	if err := env.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	now := time.Now().UTC()
	return &OutboxRecord{
		ID:        id,
		Payload:   payload,
		Status:    OutboxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Envelope decodes and validates the record payload.
func (r *OutboxRecord) Envelope() (DeliveryEnvelope, error) {
	return DecodeEnvelope(r.Payload)
}

// Transition moves the record to next, stamping UpdatedAt.
func (r *OutboxRecord) Transition(next OutboxStatus, at time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = at
	return nil
}
