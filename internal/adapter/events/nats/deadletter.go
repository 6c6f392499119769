package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/port"
)

// DeadLetters reads the dead-letter stream by sequence. Reads never remove
// entries.
type DeadLetters struct {
	js     jetstream.JetStream
	stream string
}

func NewDeadLetters(js jetstream.JetStream, stream string) *DeadLetters {
	return &DeadLetters{js: js, stream: stream}
}

// List returns up to limit entries oldest first. A limit of zero or less
// returns every entry.
func (d *DeadLetters) List(ctx context.Context, limit int) ([]port.DeadLetterEntry, error) {
	var out []port.DeadLetterEntry
	err := d.scan(ctx, func(e port.DeadLetterEntry) bool {
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// Find returns the newest entry for messageID.
func (d *DeadLetters) Find(ctx context.Context, messageID string) (*port.DeadLetterEntry, error) {
	var found *port.DeadLetterEntry
	err := d.scan(ctx, func(e port.DeadLetterEntry) bool {
		if e.Letter.MessageID == messageID {
			found = &e
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDeadLetterNotFound, messageID)
	}
	return found, nil
}

func (d *DeadLetters) scan(ctx context.Context, fn func(port.DeadLetterEntry) bool) error {
	stream, err := d.js.Stream(ctx, d.stream)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", d.stream, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("stream info %s: %w", d.stream, err)
	}
	if info.State.Msgs == 0 {
		return nil
	}
	for seq := info.State.FirstSeq; seq <= info.State.LastSeq; seq++ {
		raw, err := stream.GetMsg(ctx, seq)
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("get dead letter %d: %w", seq, err)
		}
		var letter domain.DeadLetter
		if err := json.Unmarshal(raw.Data, &letter); err != nil {
			slog.Warn("skip undecodable dead letter", "seq", seq, "error", err)
			continue
		}
		if !fn(port.DeadLetterEntry{Sequence: raw.Sequence, Received: raw.Time, Letter: letter}) {
			return nil
		}
	}
	return nil
}

var _ port.DeadLetterReader = (*DeadLetters)(nil)
