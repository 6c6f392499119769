package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/strogmv/mailrelay/internal/adapter/repository/memory"
	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/pkg/auth"
)

func newTestRegistration(store *memory.Store) *Registration {
	reg := NewRegistration(store, store.Users(), store.Outbox(), auth.NewSigner("test-secret", time.Hour))
	reg.HashCost = bcrypt.MinCost
	return reg
}

func TestRegisterWritesUserAndOutboxRecord(t *testing.T) {
	store := memory.NewStore()
	reg := newTestRegistration(store)
	ctx := context.Background()

	resp, err := reg.Register(ctx, RegisterRequest{Email: " New@Example.com ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", resp.Email)

	user, err := store.Users().FindByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, user.ID)
	assert.False(t, user.IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))

	pending, err := store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, resp.MessageID, pending[0].ID)

	env, err := pending[0].Envelope()
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", env.Recipient)
	assert.Equal(t, resp.MessageID.String(), env.MessageID)
	assert.NotEmpty(t, env.Token)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	reg := newTestRegistration(memory.NewStore())
	tests := []RegisterRequest{
		{Email: "not-an-email", Password: "password123"},
		{Email: "a@example.com", Password: "short"},
		{Email: "", Password: ""},
	}
	for _, req := range tests {
		_, err := reg.Register(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrValidation, "request %+v", req)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := memory.NewStore()
	reg := newTestRegistration(store)
	ctx := context.Background()

	_, err := reg.Register(ctx, RegisterRequest{Email: "dup@example.com", Password: "password123"})
	require.NoError(t, err)
	_, err = reg.Register(ctx, RegisterRequest{Email: "DUP@example.com", Password: "password123"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	pending, err := store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRegisterOutboxFailureRollsBackUser(t *testing.T) {
	store := memory.NewStore()
	boom := errors.New("disk full")
	outbox := &OutboxRepositoryMock{Next: store.Outbox(), AppendFunc: func(context.Context, *domain.OutboxRecord) error {
		return boom
	}}
	reg := NewRegistration(store, store.Users(), outbox, auth.NewSigner("test-secret", time.Hour))
	reg.HashCost = bcrypt.MinCost
	ctx := context.Background()

	_, err := reg.Register(ctx, RegisterRequest{Email: "atomic@example.com", Password: "password123"})
	require.ErrorIs(t, err, boom)

	_, err = store.Users().FindByEmail(ctx, "atomic@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestConfirmActivatesUser(t *testing.T) {
	store := memory.NewStore()
	reg := newTestRegistration(store)
	ctx := context.Background()

	_, err := reg.Register(ctx, RegisterRequest{Email: "c@example.com", Password: "password123"})
	require.NoError(t, err)
	pending, err := store.Outbox().ListPending(ctx, 1)
	require.NoError(t, err)
	env, err := pending[0].Envelope()
	require.NoError(t, err)

	email, err := reg.Confirm(ctx, env.Token)
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", email)

	user, err := store.Users().FindByEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.True(t, user.IsVerified)

	// Confirming twice is harmless.
	_, err = reg.Confirm(ctx, env.Token)
	assert.NoError(t, err)
}

func TestConfirmRejectsBadTokens(t *testing.T) {
	store := memory.NewStore()
	reg := newTestRegistration(store)
	ctx := context.Background()

	_, err := reg.Confirm(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	other := auth.NewSigner("other-secret", time.Hour)
	forged, err := other.Issue("c@example.com")
	require.NoError(t, err)
	_, err = reg.Confirm(ctx, forged)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	orphan, err := reg.signer.Issue("ghost@example.com")
	require.NoError(t, err)
	_, err = reg.Confirm(ctx, orphan)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}
