package port

import (
	"context"
	"time"

	"github.com/strogmv/mailrelay/internal/domain"
)

// PublishResult is the broker acknowledgment of a persisted publish.
type PublishResult struct {
	Stream    string
	Sequence  uint64
	Duplicate bool
}

// StreamPublisher publishes to the durable stream. msgID is used by the
// broker to drop duplicates within its duplicate window.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) (PublishResult, error)
}

// Delivery is one message received from the durable stream under explicit
// acknowledgment.
type Delivery interface {
	Data() []byte
	// MsgID returns the transport-level deduplication id, if any.
	MsgID() string
	// Sequence returns the stream sequence of the message.
	Sequence() uint64
	// NumDelivered returns how many times the broker delivered this message.
	NumDelivered() uint64
	// Headers returns message headers for trace propagation.
	Headers() map[string][]string
	// Ack acknowledges the message and waits for the broker to confirm it.
	Ack(ctx context.Context) error
	// Nak asks the broker to redeliver the message after delay.
	Nak(delay time.Duration) error
}

// DeliveryHandler processes one delivery to a terminal decision.
type DeliveryHandler interface {
	Handle(ctx context.Context, d Delivery) domain.Outcome
}
