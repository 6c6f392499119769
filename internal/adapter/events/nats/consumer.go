package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	natspkg "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/strogmv/mailrelay/internal/port"
)

type ConsumerOptions struct {
	Stream  string
	Durable string
	Subject string
	AckWait time.Duration
	Workers int
}

// Consumer pulls from a durable explicit-ack consumer with a fixed number of
// workers.
type Consumer struct {
	js   jetstream.JetStream
	opts ConsumerOptions
}

func NewConsumer(js jetstream.JetStream, opts ConsumerOptions) *Consumer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Consumer{js: js, opts: opts}
}

func (c *Consumer) config() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       c.opts.Durable,
		FilterSubject: c.opts.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.opts.AckWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
}

// Run blocks until ctx is cancelled. Workers stop taking messages on
// cancellation; a handler already running finishes with an uncancelled
// context so its ack or nak still reaches the broker.
func (c *Consumer) Run(ctx context.Context, handler port.DeliveryHandler) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.opts.Stream, c.config())
	if err != nil {
		return fmt.Errorf("ensure consumer %s: %w", c.opts.Durable, err)
	}

	iters := make([]jetstream.MessagesContext, 0, c.opts.Workers)
	for range c.opts.Workers {
		iter, err := cons.Messages()
		if err != nil {
			for _, it := range iters {
				it.Stop()
			}
			return fmt.Errorf("open message iterator: %w", err)
		}
		iters = append(iters, iter)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(iters))
	for i, iter := range iters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.work(ctx, i, iter, handler); err != nil {
				errs <- err
			}
		}()
	}
	go func() {
		<-ctx.Done()
		for _, it := range iters {
			it.Stop()
		}
	}()
	slog.Info("consumer started", "durable", c.opts.Durable, "subject", c.opts.Subject, "workers", c.opts.Workers)

	wg.Wait()
	close(errs)
	var all []error
	for err := range errs {
		all = append(all, err)
	}
	slog.Info("consumer stopped", "durable", c.opts.Durable)
	return errors.Join(all...)
}

func (c *Consumer) work(ctx context.Context, worker int, iter jetstream.MessagesContext, handler port.DeliveryHandler) error {
	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, jetstream.ErrConsumerDeleted) {
				return fmt.Errorf("worker %d: %w", worker, err)
			}
			slog.Warn("next message", "worker", worker, "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		handler.Handle(context.WithoutCancel(ctx), newDelivery(msg))
	}
}

// delivery adapts a JetStream message to port.Delivery.
type delivery struct {
	msg jetstream.Msg
	md  *jetstream.MsgMetadata
}

func newDelivery(msg jetstream.Msg) *delivery {
	md, err := msg.Metadata()
	if err != nil {
		md = nil
	}
	return &delivery{msg: msg, md: md}
}

func (d *delivery) Data() []byte {
	return d.msg.Data()
}

func (d *delivery) MsgID() string {
	return d.msg.Headers().Get(natspkg.MsgIdHdr)
}

func (d *delivery) Sequence() uint64 {
	if d.md == nil {
		return 0
	}
	return d.md.Sequence.Stream
}

func (d *delivery) NumDelivered() uint64 {
	if d.md == nil {
		return 0
	}
	return d.md.NumDelivered
}

func (d *delivery) Headers() map[string][]string {
	return d.msg.Headers()
}

func (d *delivery) Ack(ctx context.Context) error {
	return d.msg.DoubleAck(ctx)
}

func (d *delivery) Nak(delay time.Duration) error {
	if delay <= 0 {
		return d.msg.Nak()
	}
	return d.msg.NakWithDelay(delay)
}

var _ port.Delivery = (*delivery)(nil)
