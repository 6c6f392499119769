package nats

import (
	"context"
	"fmt"

	natspkg "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/strogmv/mailrelay/internal/port"
)

// Publisher publishes to a stream and waits for the broker ack.
type Publisher struct {
	js     jetstream.JetStream
	stream string
}

func NewPublisher(js jetstream.JetStream, stream string) *Publisher {
	return &Publisher{js: js, stream: stream}
}

// Publish sends data with msgID as the dedup key. A publish the stream already
// saw inside its duplicate window returns Duplicate without storing again.
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte, msgID string) (port.PublishResult, error) {
	msg := natspkg.NewMsg(subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	opts := []jetstream.PublishOpt{jetstream.WithMsgID(msgID)}
	if p.stream != "" {
		opts = append(opts, jetstream.WithExpectStream(p.stream))
	}
	ack, err := p.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return port.PublishResult{}, fmt.Errorf("publish %s: %w", subject, err)
	}
	return port.PublishResult{Stream: ack.Stream, Sequence: ack.Sequence, Duplicate: ack.Duplicate}, nil
}

var _ port.StreamPublisher = (*Publisher)(nil)
