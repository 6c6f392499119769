// Package memory provides an in-memory implementation of the repository.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/strogmv/mailrelay/internal/domain"
)

// Store holds users and outbox records. Writes made inside WithTx are staged
// and applied together on commit, or dropped when fn fails.
type Store struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]domain.User
	emails map[string]uuid.UUID
	outbox map[uuid.UUID]domain.OutboxRecord
	seq    map[uuid.UUID]int64
	next   int64
}

func NewStore() *Store {
	return &Store{
		users:  make(map[uuid.UUID]domain.User),
		emails: make(map[string]uuid.UUID),
		outbox: make(map[uuid.UUID]domain.OutboxRecord),
		seq:    make(map[uuid.UUID]int64),
	}
}

type op func(s *Store) error

type txKey struct{}

type tx struct {
	ops []op
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// exec applies o immediately, or stages it when ctx carries a transaction.
func (s *Store) exec(ctx context.Context, o op) error {
	if t := txFrom(ctx); t != nil {
		t.ops = append(t.ops, o)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return o(s)
}

// WithTx implements port.TxManager. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	t := &tx{}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := &Store{
		users:  maps.Clone(s.users),
		emails: maps.Clone(s.emails),
		outbox: maps.Clone(s.outbox),
		seq:    maps.Clone(s.seq),
		next:   s.next,
	}
	for _, o := range t.ops {
		if err := o(draft); err != nil {
			return err
		}
	}
	s.users, s.emails, s.outbox, s.seq, s.next = draft.users, draft.emails, draft.outbox, draft.seq, draft.next
	return nil
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository {
	return &UserRepository{store: s}
}

// Outbox returns the outbox repository view of the store.
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{store: s}
}
