package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/strogmv/mailrelay/internal/domain"
)

// UserRepository defines storage operations for User
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Activate(ctx context.Context, id uuid.UUID) error
}
