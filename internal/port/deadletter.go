package port

import (
	"context"
	"time"

	"github.com/strogmv/mailrelay/internal/domain"
)

// DeadLetterEntry is a dead-letter stream message with its stream position.
type DeadLetterEntry struct {
	Sequence uint64
	Received time.Time
	Letter   domain.DeadLetter
}

// DeadLetterReader reads the dead-letter stream without consuming it.
type DeadLetterReader interface {
	List(ctx context.Context, limit int) ([]DeadLetterEntry, error)
	Find(ctx context.Context, messageID string) (*DeadLetterEntry, error)
}
