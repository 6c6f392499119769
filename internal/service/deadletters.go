package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/strogmv/mailrelay/internal/pkg/logger"
	"github.com/strogmv/mailrelay/internal/port"
)

var ErrArchiveNotConfigured = errors.New("dead-letter archive bucket is not configured")

// DeadLetterOps is the operator surface over the dead-letter stream.
type DeadLetterOps struct {
	reader    port.DeadLetterReader
	publisher port.StreamPublisher
	store     port.IdempotencyStore
	storage   port.ObjectStorage
	subject   string
	now       func() time.Time
}

// NewDeadLetterOps wires replay onto subject. storage may be nil when no
// archive bucket is configured.
func NewDeadLetterOps(reader port.DeadLetterReader, publisher port.StreamPublisher, store port.IdempotencyStore, storage port.ObjectStorage, subject string) *DeadLetterOps {
	return &DeadLetterOps{
		reader:    reader,
		publisher: publisher,
		store:     store,
		storage:   storage,
		subject:   subject,
		now:       time.Now,
	}
}

func (o *DeadLetterOps) List(ctx context.Context, limit int) ([]port.DeadLetterEntry, error) {
	return o.reader.List(ctx, limit)
}

// Replay republishes the original envelope of messageID under a fresh dedup
// id and clears its retry counter. The completion marker is left alone, so a
// message that was delivered in the meantime is still skipped.
func (o *DeadLetterOps) Replay(ctx context.Context, messageID string) (port.PublishResult, error) {
	entry, err := o.reader.Find(ctx, messageID)
	if err != nil {
		return port.PublishResult{}, err
	}
	if _, err := entry.Letter.Envelope(); err != nil {
		return port.PublishResult{}, fmt.Errorf("replay %s: %w", messageID, err)
	}
	if err := o.store.Delete(ctx, counterKey(messageID)); err != nil {
		return port.PublishResult{}, fmt.Errorf("reset retry counter: %w", err)
	}
	replayID := fmt.Sprintf("%s:replay:%d", messageID, o.now().Unix())
	res, err := o.publisher.Publish(ctx, o.subject, entry.Letter.OriginalMessage, replayID)
	if err != nil {
		return port.PublishResult{}, err
	}
	logger.From(ctx).Info("dead letter replayed", "message_id", messageID, "replay_id", replayID, "seq", res.Sequence)
	return res, nil
}

// Archive uploads every entry as JSON lines and returns the object location
// and the number of entries written.
func (o *DeadLetterOps) Archive(ctx context.Context) (string, int, error) {
	if o.storage == nil {
		return "", 0, ErrArchiveNotConfigured
	}
	entries, err := o.reader.List(ctx, 0)
	if err != nil {
		return "", 0, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e.Letter); err != nil {
			return "", 0, fmt.Errorf("encode dead letter %d: %w", e.Sequence, err)
		}
	}
	key := fmt.Sprintf("dead-letters/%s.jsonl", o.now().UTC().Format("20060102T150405Z"))
	loc, err := o.storage.Upload(ctx, key, &buf, "application/x-ndjson")
	if err != nil {
		return "", 0, err
	}
	logger.From(ctx).Info("dead letters archived", "location", loc, "count", len(entries))
	return loc, len(entries), nil
}
