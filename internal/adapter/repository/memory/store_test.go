package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/mailrelay/internal/domain"
)

func newRecord(t *testing.T, recipient string) *domain.OutboxRecord {
	t.Helper()
	rec, err := domain.NewOutboxRecord(uuid.New(), domain.DeliveryEnvelope{Recipient: recipient, Token: "tok"})
	require.NoError(t, err)
	return rec
}

func TestWithTxCommitsAllWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	user := &domain.User{ID: uuid.New(), Email: "a@example.com"}
	rec := newRecord(t, user.Email)

	err := store.WithTx(ctx, func(ctx context.Context) error {
		if err := store.Users().Create(ctx, user); err != nil {
			return err
		}
		return store.Outbox().Append(ctx, rec)
	})
	require.NoError(t, err)

	got, err := store.Users().FindByEmail(ctx, "A@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	pending, err := store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)
}

func TestWithTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	user := &domain.User{ID: uuid.New(), Email: "b@example.com"}
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Users().Create(ctx, user))
		require.NoError(t, store.Outbox().Append(ctx, newRecord(t, user.Email)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Users().FindByEmail(ctx, user.Email)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	pending, err := store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Users().Create(ctx, &domain.User{ID: uuid.New(), Email: "c@example.com"}))

	err := store.Users().Create(ctx, &domain.User{ID: uuid.New(), Email: "C@example.com"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestOutboxTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Outbox()
	first, second := newRecord(t, "d@example.com"), newRecord(t, "e@example.com")
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))

	pending, err := repo.ListPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, repo.RecordAttempt(ctx, first.ID, "nats down"))
	require.NoError(t, repo.MarkSent(ctx, first.ID))
	require.NoError(t, repo.MarkFailed(ctx, second.ID, "malformed"))

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxSent, got.Status)
	assert.Equal(t, 1, got.Attempts)

	assert.ErrorIs(t, repo.MarkSent(ctx, second.ID), domain.ErrInvalidTransition)
	assert.ErrorIs(t, repo.MarkSent(ctx, uuid.New()), domain.ErrOutboxRecordNotFound)

	pending, err = repo.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
