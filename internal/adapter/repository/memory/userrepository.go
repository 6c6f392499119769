package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/strogmv/mailrelay/internal/domain"
)

type UserRepository struct {
	store *Store
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	u := *user
	email := strings.ToLower(u.Email)
	if txFrom(ctx) != nil {
		// Report a taken email at the call site, not only at commit.
		r.store.mu.RLock()
		_, taken := r.store.emails[email]
		r.store.mu.RUnlock()
		if taken {
			return domain.ErrEmailTaken
		}
	}
	return r.store.exec(ctx, func(s *Store) error {
		if _, taken := s.emails[email]; taken {
			return domain.ErrEmailTaken
		}
		s.users[u.ID] = u
		s.emails[email] = u.ID
		return nil
	})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	id, ok := r.store.emails[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := r.store.users[id]
	return &u, nil
}

func (r *UserRepository) Activate(ctx context.Context, id uuid.UUID) error {
	return r.store.exec(ctx, func(s *Store) error {
		u, ok := s.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		u.IsActive = true
		u.IsVerified = true
		s.users[id] = u
		return nil
	})
}
