package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/port"
)

type UserRepository struct {
	DB *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{DB: pool}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	exec := getExecutor(ctx, r.DB)
	_, err := exec.Exec(ctx,
		"INSERT INTO users (id, email, password_hash, is_active, is_verified, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		user.ID, strings.ToLower(user.Email), user.PasswordHash, user.IsActive, user.IsVerified, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	exec := getExecutor(ctx, r.DB)
	var u domain.User
	err := exec.QueryRow(ctx,
		"SELECT id, email, password_hash, is_active, is_verified, created_at FROM users WHERE email = $1",
		strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsVerified, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Activate(ctx context.Context, id uuid.UUID) error {
	exec := getExecutor(ctx, r.DB)
	tag, err := exec.Exec(ctx, "UPDATE users SET is_active = TRUE, is_verified = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
