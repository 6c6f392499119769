package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/strogmv/mailrelay/internal/port"
)

type RelayConfig struct {
	Subject      string
	BatchSize    int
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

// RelayResult summarizes one relay cycle.
type RelayResult struct {
	Published  int
	Duplicates int
	Failed     int
}

// PollingRelay publishes pending outbox records and marks them sent once the
// broker confirmed them. Running several relays is safe: rows are locked with
// SKIP LOCKED and the record id is the stream dedup key.
type PollingRelay struct {
	tx        port.TxManager
	outbox    port.OutboxRepository
	publisher port.StreamPublisher
	cfg       RelayConfig
}

func NewPollingRelay(tx port.TxManager, outbox port.OutboxRepository, publisher port.StreamPublisher, cfg RelayConfig) *PollingRelay {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = cfg.PollInterval
	}
	return &PollingRelay{tx: tx, outbox: outbox, publisher: publisher, cfg: cfg}
}

// Run polls until ctx is cancelled. Failed cycles back off exponentially
// with jitter; retries never give up.
func (r *PollingRelay) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.PollInterval
	bo.MaxInterval = r.cfg.MaxBackoff

	slog.Info("relay started", "subject", r.cfg.Subject, "batch_size", r.cfg.BatchSize, "interval", r.cfg.PollInterval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("relay stopped")
			return nil
		case <-timer.C:
		}

		res, err := r.RunOnce(ctx)
		wait := r.cfg.PollInterval
		switch {
		case err != nil:
			if ctx.Err() != nil {
				slog.Info("relay stopped")
				return nil
			}
			wait = bo.NextBackOff()
			slog.Warn("relay cycle failed", "error", err, "retry_in", wait)
		case res.Published+res.Failed == r.cfg.BatchSize:
			// A full batch suggests more rows are waiting.
			bo.Reset()
			wait = 0
		default:
			bo.Reset()
		}
		timer.Reset(wait)
	}
}

// RunOnce runs one cycle in a transaction. A publish failure stops the batch;
// records marked before it stay marked.
func (r *PollingRelay) RunOnce(ctx context.Context) (RelayResult, error) {
	var (
		res        RelayResult
		publishErr error
	)
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		records, err := r.outbox.ListPending(ctx, r.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list pending: %w", err)
		}
		for _, rec := range records {
			log := slog.With("outbox_id", rec.ID)
			if _, err := rec.Envelope(); err != nil {
				log.Error("malformed outbox payload", "error", err)
				relayFailures.WithLabelValues("malformed").Inc()
				if err := r.outbox.MarkFailed(ctx, rec.ID, err.Error()); err != nil {
					return fmt.Errorf("mark failed %s: %w", rec.ID, err)
				}
				res.Failed++
				continue
			}

			ack, err := r.publisher.Publish(ctx, r.cfg.Subject, rec.Payload, rec.ID.String())
			if err != nil {
				relayFailures.WithLabelValues("publish").Inc()
				publishErr = fmt.Errorf("publish %s: %w", rec.ID, err)
				if rerr := r.outbox.RecordAttempt(ctx, rec.ID, err.Error()); rerr != nil {
					return errors.Join(publishErr, fmt.Errorf("record attempt: %w", rerr))
				}
				return nil
			}
			if ack.Duplicate {
				res.Duplicates++
				relayDuplicates.Inc()
			}
			if err := r.outbox.MarkSent(ctx, rec.ID); err != nil {
				return fmt.Errorf("mark sent %s: %w", rec.ID, err)
			}
			res.Published++
			relayPublished.Inc()
			log.Debug("outbox record published", "stream", ack.Stream, "seq", ack.Sequence, "duplicate", ack.Duplicate)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	return res, publishErr
}

var _ port.Relay = (*PollingRelay)(nil)
