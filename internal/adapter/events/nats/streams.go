package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Topology names the delivery and dead-letter streams.
type Topology struct {
	Stream             string
	Subjects           []string
	Subject            string
	MaxMsgs            int64
	MaxMsgSize         int32
	DuplicateWindow    time.Duration
	DeadLetterStream   string
	DeadLetterSubject  string
	DeadLetterSubjects []string
	DeadLetterMaxMsgs  int64
}

// StreamConfigs returns the delivery stream (work queue) and the dead-letter
// stream (limits, oldest discarded). A full delivery stream rejects new
// publishes so the relay keeps the record pending instead of losing the
// oldest unconsumed envelope.
func (t Topology) StreamConfigs() (jetstream.StreamConfig, jetstream.StreamConfig) {
	delivery := jetstream.StreamConfig{
		Name:       t.Stream,
		Subjects:   t.Subjects,
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.WorkQueuePolicy,
		MaxMsgs:    t.MaxMsgs,
		MaxMsgSize: t.MaxMsgSize,
		Discard:    jetstream.DiscardNew,
		Duplicates: t.DuplicateWindow,
	}
	dead := jetstream.StreamConfig{
		Name:       t.DeadLetterStream,
		Subjects:   t.DeadLetterSubjects,
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxMsgs:    t.DeadLetterMaxMsgs,
		MaxMsgSize: t.MaxMsgSize,
		Discard:    jetstream.DiscardOld,
		Duplicates: t.DuplicateWindow,
	}
	return delivery, dead
}

// EnsureStreams creates or updates both streams.
func (c *Client) EnsureStreams(ctx context.Context, t Topology) error {
	delivery, dead := t.StreamConfigs()
	for _, cfg := range []jetstream.StreamConfig{delivery, dead} {
		if _, err := c.js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
		slog.Info("stream ready", "stream", cfg.Name, "subjects", cfg.Subjects)
	}
	return nil
}
