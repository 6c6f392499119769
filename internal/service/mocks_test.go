package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/port"
)

// eventLog records side effects across mocks in call order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type DeliveryMock struct {
	data         []byte
	msgID        string
	seq          uint64
	numDelivered uint64
	headers      map[string][]string
	log          *eventLog

	AckFunc func(ctx context.Context) error
	NakFunc func(delay time.Duration) error

	acks      int
	nakDelays []time.Duration
}

func (m *DeliveryMock) Data() []byte { return m.data }
func (m *DeliveryMock) MsgID() string { return m.msgID }
func (m *DeliveryMock) Sequence() uint64 { return m.seq }
func (m *DeliveryMock) NumDelivered() uint64 { return m.numDelivered }
func (m *DeliveryMock) Headers() map[string][]string { return m.headers }

func (m *DeliveryMock) Ack(ctx context.Context) error {
	m.log.add("ack")
	m.acks++
	if m.AckFunc != nil {
		return m.AckFunc(ctx)
	}
	return nil
}

func (m *DeliveryMock) Nak(delay time.Duration) error {
	m.log.add("nak")
	m.nakDelays = append(m.nakDelays, delay)
	if m.NakFunc != nil {
		return m.NakFunc(delay)
	}
	return nil
}

type ConfirmationSenderMock struct {
	SendConfirmationFunc func(ctx context.Context, recipient, token string) error
	log                  *eventLog

	mu    sync.Mutex
	calls int
}

func (m *ConfirmationSenderMock) SendConfirmation(ctx context.Context, recipient, token string) error {
	m.log.add("send")
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.SendConfirmationFunc != nil {
		return m.SendConfirmationFunc(ctx, recipient, token)
	}
	return nil
}

func (m *ConfirmationSenderMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type publishCall struct {
	Subject string
	Data    []byte
	MsgID   string
}

type StreamPublisherMock struct {
	PublishFunc func(ctx context.Context, subject string, data []byte, msgID string) (port.PublishResult, error)
	log         *eventLog

	mu    sync.Mutex
	calls []publishCall
}

func (m *StreamPublisherMock) Publish(ctx context.Context, subject string, data []byte, msgID string) (port.PublishResult, error) {
	m.log.add("publish")
	m.mu.Lock()
	m.calls = append(m.calls, publishCall{Subject: subject, Data: data, MsgID: msgID})
	seq := uint64(len(m.calls))
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, subject, data, msgID)
	}
	return port.PublishResult{Stream: "test", Sequence: seq}, nil
}

func (m *StreamPublisherMock) Calls() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishCall(nil), m.calls...)
}

// IdempotencyStoreMock delegates to Next unless a Func is set.
type IdempotencyStoreMock struct {
	Next            port.IdempotencyStore
	ExistsFunc      func(ctx context.Context, key string) (bool, error)
	SetIfAbsentFunc func(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	IncrementFunc   func(ctx context.Context, key string, ttl time.Duration) (int64, error)
	DeleteFunc      func(ctx context.Context, keys ...string) error
	log             *eventLog
}

func (m *IdempotencyStoreMock) Exists(ctx context.Context, key string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, key)
	}
	return m.Next.Exists(ctx, key)
}

func (m *IdempotencyStoreMock) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.log.add("marker")
	if m.SetIfAbsentFunc != nil {
		return m.SetIfAbsentFunc(ctx, key, value, ttl)
	}
	return m.Next.SetIfAbsent(ctx, key, value, ttl)
}

func (m *IdempotencyStoreMock) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.log.add("increment")
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, key, ttl)
	}
	return m.Next.Increment(ctx, key, ttl)
}

func (m *IdempotencyStoreMock) Delete(ctx context.Context, keys ...string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, keys...)
	}
	return m.Next.Delete(ctx, keys...)
}

type DeliveryLockMock struct {
	AcquireFunc func(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error)
}

func (m *DeliveryLockMock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, key, ttl)
	}
	return func(context.Context) {}, true, nil
}

// OutboxRepositoryMock delegates to Next unless a Func is set.
type OutboxRepositoryMock struct {
	Next              port.OutboxRepository
	AppendFunc        func(ctx context.Context, rec *domain.OutboxRecord) error
	ListPendingFunc   func(ctx context.Context, limit int) ([]domain.OutboxRecord, error)
	MarkSentFunc      func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID, reason string) error
	RecordAttemptFunc func(ctx context.Context, id uuid.UUID, reason string) error
}

func (m *OutboxRepositoryMock) Append(ctx context.Context, rec *domain.OutboxRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, rec)
	}
	return m.Next.Append(ctx, rec)
}

func (m *OutboxRepositoryMock) ListPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, limit)
	}
	return m.Next.ListPending(ctx, limit)
}

func (m *OutboxRepositoryMock) MarkSent(ctx context.Context, id uuid.UUID) error {
	if m.MarkSentFunc != nil {
		return m.MarkSentFunc(ctx, id)
	}
	return m.Next.MarkSent(ctx, id)
}

func (m *OutboxRepositoryMock) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, reason)
	}
	return m.Next.MarkFailed(ctx, id, reason)
}

func (m *OutboxRepositoryMock) RecordAttempt(ctx context.Context, id uuid.UUID, reason string) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, id, reason)
	}
	return m.Next.RecordAttempt(ctx, id, reason)
}

type DeadLetterReaderMock struct {
	entries []port.DeadLetterEntry
}

func (m *DeadLetterReaderMock) List(ctx context.Context, limit int) ([]port.DeadLetterEntry, error) {
	if limit > 0 && len(m.entries) > limit {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

func (m *DeadLetterReaderMock) Find(ctx context.Context, messageID string) (*port.DeadLetterEntry, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Letter.MessageID == messageID {
			e := m.entries[i]
			return &e, nil
		}
	}
	return nil, domain.ErrDeadLetterNotFound
}

type ObjectStorageMock struct {
	keys   []string
	bodies [][]byte
}

func (m *ObjectStorageMock) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	m.bodies = append(m.bodies, body)
	return "mem://" + key, nil
}
