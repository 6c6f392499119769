package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/mailrelay/internal/adapter/cache/memory"
	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/port"
)

func deadLetterEntry(seq uint64, id string, original []byte, failure domain.FailureType) port.DeadLetterEntry {
	return port.DeadLetterEntry{
		Sequence: seq,
		Received: time.Unix(1700000000, 0),
		Letter:   domain.NewDeadLetter(original, id, 3, failure, nil, time.Unix(1700000000, 0)),
	}
}

func TestReplayRepublishesWithFreshID(t *testing.T) {
	ctx := context.Background()
	original := []byte(`{"recipient":"a@example.com","token":"t","message_id":"m1"}`)
	reader := &DeadLetterReaderMock{entries: []port.DeadLetterEntry{deadLetterEntry(1, "m1", original, domain.FailureExhausted)}}
	cache := memory.NewStore()
	_, _ = cache.Increment(ctx, "attempts:m1", time.Minute)
	_, _ = cache.SetIfAbsent(ctx, "delivery:other", "done", time.Hour)
	pub := &StreamPublisherMock{}
	ops := NewDeadLetterOps(reader, pub, cache, nil, "email.send")
	ops.now = func() time.Time { return time.Unix(1700000100, 0) }

	_, err := ops.Replay(ctx, "m1")
	require.NoError(t, err)

	calls := pub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "email.send", calls[0].Subject)
	assert.Equal(t, "m1:replay:1700000100", calls[0].MsgID)
	assert.JSONEq(t, string(original), string(calls[0].Data))

	exists, _ := cache.Exists(ctx, "attempts:m1")
	assert.False(t, exists)
	exists, _ = cache.Exists(ctx, "delivery:other")
	assert.True(t, exists)
}

func TestReplayRejectsMalformedAndUnknown(t *testing.T) {
	ctx := context.Background()
	reader := &DeadLetterReaderMock{entries: []port.DeadLetterEntry{deadLetterEntry(1, "seq:4", []byte("garbage"), domain.FailureMalformed)}}
	pub := &StreamPublisherMock{}
	ops := NewDeadLetterOps(reader, pub, memory.NewStore(), nil, "email.send")

	_, err := ops.Replay(ctx, "seq:4")
	assert.ErrorIs(t, err, domain.ErrMalformedEnvelope)
	_, err = ops.Replay(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDeadLetterNotFound)
	assert.Empty(t, pub.Calls())
}

func TestArchiveUploadsJSONLines(t *testing.T) {
	ctx := context.Background()
	reader := &DeadLetterReaderMock{entries: []port.DeadLetterEntry{
		deadLetterEntry(1, "a", []byte(`{"message_id":"a"}`), domain.FailureExhausted),
		deadLetterEntry(2, "b", []byte("raw"), domain.FailureMalformed),
	}}
	storage := &ObjectStorageMock{}
	ops := NewDeadLetterOps(reader, &StreamPublisherMock{}, memory.NewStore(), storage, "email.send")
	ops.now = func() time.Time { return time.Date(2024, 3, 2, 10, 4, 5, 0, time.UTC) }

	loc, n, err := ops.Archive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "mem://dead-letters/20240302T100405Z.jsonl", loc)

	require.Len(t, storage.bodies, 1)
	sc := bufio.NewScanner(bytes.NewReader(storage.bodies[0]))
	var ids []string
	for sc.Scan() {
		var letter domain.DeadLetter
		require.NoError(t, json.Unmarshal(sc.Bytes(), &letter))
		ids = append(ids, letter.MessageID)
	}
	assert.Equal(t, "a,b", strings.Join(ids, ","))
}

func TestArchiveRequiresStorage(t *testing.T) {
	ops := NewDeadLetterOps(&DeadLetterReaderMock{}, &StreamPublisherMock{}, memory.NewStore(), nil, "email.send")
	_, _, err := ops.Archive(context.Background())
	assert.ErrorIs(t, err, ErrArchiveNotConfigured)
}
