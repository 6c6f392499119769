package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/pkg/logger"
	"github.com/strogmv/mailrelay/internal/port"
)

var tracer = otel.Tracer("github.com/strogmv/mailrelay/internal/service")

type DeliveryConfig struct {
	MaxAttempts       int
	RetryDelay        time.Duration
	AttemptTimeout    time.Duration
	IdempotencyTTL    time.Duration
	RetryCounterTTL   time.Duration
	LockTTL           time.Duration
	DeadLetterSubject string
}

// transportError is implemented by errors from the mail transport.
type transportError interface {
	error
	Transport() bool
}

func isTransport(err error) bool {
	var te transportError
	return errors.As(err, &te) && te.Transport()
}

// DeliveryConsumer decides each delivery: skip a completed one, attempt it,
// retry a transient failure, or escalate it to the dead-letter stream.
type DeliveryConsumer struct {
	store       port.IdempotencyStore
	lock        port.DeliveryLock
	sender      port.ConfirmationSender
	deadLetters port.StreamPublisher
	cfg         DeliveryConfig
	now         func() time.Time
}

// NewDeliveryConsumer builds a consumer. lock may be nil, in which case
// concurrent redeliveries rely on the completion marker alone.
func NewDeliveryConsumer(store port.IdempotencyStore, lock port.DeliveryLock, sender port.ConfirmationSender, deadLetters port.StreamPublisher, cfg DeliveryConfig) *DeliveryConsumer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 4 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.AttemptTimeout
	}
	return &DeliveryConsumer{
		store:       store,
		lock:        lock,
		sender:      sender,
		deadLetters: deadLetters,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (c *DeliveryConsumer) Handle(ctx context.Context, d port.Delivery) domain.Outcome {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(d.Headers()))
	ctx, span := tracer.Start(ctx, "delivery.handle")
	defer span.End()

	outcome := c.handle(ctx, d)

	span.SetAttributes(
		attribute.String("delivery.outcome", string(outcome)),
		attribute.Int64("delivery.stream_seq", int64(d.Sequence())),
	)
	if outcome == domain.OutcomeDeadLettered {
		span.SetStatus(codes.Error, "dead-lettered")
	}
	deliveryOutcomes.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (c *DeliveryConsumer) handle(ctx context.Context, d port.Delivery) domain.Outcome {
	log := logger.From(ctx).With("seq", d.Sequence(), "delivered", d.NumDelivered())

	env, err := domain.DecodeEnvelope(d.Data())
	if err != nil {
		id := fallbackID(env, d)
		log = log.With("message_id", id)
		log.Error("malformed delivery", "error", err)
		return c.escalate(ctx, d, log, id, int(d.NumDelivered()), domain.FailureMalformed, err)
	}
	id := env.MessageID
	log = log.With("message_id", id)

	done, err := c.store.Exists(ctx, markerKey(id))
	if err != nil {
		log.Warn("idempotency check failed", "error", err)
		return c.retry(d, log)
	}
	if done {
		log.Info("duplicate delivery skipped")
		return c.ack(ctx, d, log, domain.OutcomeSkip)
	}

	if c.lock != nil {
		release, ok, err := c.lock.Acquire(ctx, lockKey(id), c.cfg.LockTTL)
		if err != nil {
			log.Warn("delivery lock failed", "error", err)
			return c.retry(d, log)
		}
		if !ok {
			log.Info("delivery in flight on another worker")
			c.nak(d, log)
			return domain.OutcomeBusy
		}
		defer release(context.WithoutCancel(ctx))

		// The holder we waited behind may have completed the delivery.
		done, err := c.store.Exists(ctx, markerKey(id))
		if err != nil {
			log.Warn("idempotency check failed", "error", err)
			return c.retry(d, log)
		}
		if done {
			log.Info("duplicate delivery skipped")
			return c.ack(ctx, d, log, domain.OutcomeSkip)
		}
	}

	err = c.attempt(ctx, env)
	if err == nil {
		if _, err := c.store.SetIfAbsent(ctx, markerKey(id), markerValue, c.cfg.IdempotencyTTL); err != nil {
			log.Error("idempotency marker write failed", "error", err)
			return c.retry(d, log)
		}
		log.Info("confirmation delivered")
		return c.ack(ctx, d, log, domain.OutcomeSuccess)
	}

	if isTransport(err) {
		log.Warn("confirmation delivery failed", "error", err)
	} else {
		log.Error("unexpected delivery error", "error", err)
	}

	count, cerr := c.store.Increment(ctx, counterKey(id), c.cfg.RetryCounterTTL)
	if cerr != nil {
		log.Warn("retry counter update failed", "error", cerr)
		return c.retry(d, log)
	}
	if count < int64(c.cfg.MaxAttempts) {
		log.Info("delivery scheduled for retry", "attempt", count, "max_attempts", c.cfg.MaxAttempts)
		return c.retry(d, log)
	}
	return c.escalate(ctx, d, log, id, int(count), domain.FailureExhausted, err)
}

// attempt runs the send detached from worker cancellation and bounded by
// the attempt timeout.
func (c *DeliveryConsumer) attempt(ctx context.Context, env domain.DeliveryEnvelope) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.AttemptTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "delivery.attempt")
	defer span.End()

	start := time.Now()
	err := c.sender.SendConfirmation(ctx, env.Recipient, env.Token)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	deliveryDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return err
}

// escalate publishes a dead letter and acks the original only after the
// dead-letter stream confirmed it. The dead-letter dedup id is the transport
// id of the delivery, so a redelivered escalation collapses into one entry
// while a replayed message, published under a fresh id, gets its own.
func (c *DeliveryConsumer) escalate(ctx context.Context, d port.Delivery, log *slog.Logger, id string, attempts int, failure domain.FailureType, cause error) domain.Outcome {
	letter := domain.NewDeadLetter(d.Data(), id, attempts, failure, cause, c.now())
	data, err := json.Marshal(letter)
	if err != nil {
		log.Error("encode dead letter", "error", err)
		return c.retry(d, log)
	}
	res, err := c.deadLetters.Publish(ctx, c.cfg.DeadLetterSubject, data, deadLetterID(id, d))
	if err != nil {
		log.Error("dead-letter publish failed", "error", err)
		return c.retry(d, log)
	}
	if res.Duplicate {
		log.Warn("dead letter already recorded", "dedup_id", deadLetterID(id, d), "seq_dead", res.Sequence)
	}
	log.Error("delivery dead-lettered", "failure_type", failure, "attempts", attempts, "reason", letter.Error)
	return c.ack(ctx, d, log, domain.OutcomeDeadLettered)
}

func (c *DeliveryConsumer) ack(ctx context.Context, d port.Delivery, log *slog.Logger, outcome domain.Outcome) domain.Outcome {
	if err := d.Ack(ctx); err != nil {
		log.Warn("ack failed", "outcome", outcome, "error", err)
	}
	return outcome
}

func (c *DeliveryConsumer) retry(d port.Delivery, log *slog.Logger) domain.Outcome {
	c.nak(d, log)
	return domain.OutcomeRetry
}

func (c *DeliveryConsumer) nak(d port.Delivery, log *slog.Logger) {
	if err := d.Nak(c.cfg.RetryDelay); err != nil {
		log.Warn("nak failed", "error", err)
	}
}

func deadLetterID(id string, d port.Delivery) string {
	if msgID := d.MsgID(); msgID != "" {
		return msgID
	}
	return id
}

// fallbackID picks a dead-letter key for a message whose envelope did not
// validate.
func fallbackID(env domain.DeliveryEnvelope, d port.Delivery) string {
	if env.MessageID != "" {
		return env.MessageID
	}
	if id := d.MsgID(); id != "" {
		return id
	}
	return fmt.Sprintf("seq:%d", d.Sequence())
}

var _ port.DeliveryHandler = (*DeliveryConsumer)(nil)
