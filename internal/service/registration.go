package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/pkg/auth"
	"github.com/strogmv/mailrelay/internal/pkg/logger"
	"github.com/strogmv/mailrelay/internal/port"
)

var validate = validator.New()

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type RegisterResponse struct {
	UserID    uuid.UUID
	Email     string
	MessageID uuid.UUID
}

// Registration creates users and queues their confirmation mail in the same
// transaction.
type Registration struct {
	tx       port.TxManager
	users    port.UserRepository
	outbox   port.OutboxRepository
	signer   *auth.Signer
	HashCost int
}

func NewRegistration(tx port.TxManager, users port.UserRepository, outbox port.OutboxRepository, signer *auth.Signer) *Registration {
	return &Registration{tx: tx, users: users, outbox: outbox, signer: signer, HashCost: bcrypt.DefaultCost}
}

func (s *Registration) Register(ctx context.Context, req RegisterRequest) (resp RegisterResponse, err error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return resp, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.HashCost)
	if err != nil {
		return resp, fmt.Errorf("hash password: %w", err)
	}
	token, err := s.signer.Issue(req.Email)
	if err != nil {
		return resp, err
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	rec, err := domain.NewOutboxRecord(uuid.New(), domain.DeliveryEnvelope{Recipient: req.Email, Token: token})
	if err != nil {
		return resp, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		return s.outbox.Append(ctx, rec)
	})
	if err != nil {
		return resp, err
	}

	logger.From(ctx).Info("user registered", "user_id", user.ID, "outbox_id", rec.ID)
	return RegisterResponse{UserID: user.ID, Email: user.Email, MessageID: rec.ID}, nil
}

// Confirm activates the user named by a valid confirmation token and returns
// its email.
func (s *Registration) Confirm(ctx context.Context, token string) (string, error) {
	email, err := s.signer.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", fmt.Errorf("%w: unknown user", domain.ErrInvalidToken)
	}
	if err != nil {
		return "", err
	}
	if user.IsVerified {
		return user.Email, nil
	}
	if err := s.users.Activate(ctx, user.ID); err != nil {
		return "", err
	}
	logger.From(ctx).Info("user confirmed", "user_id", user.ID)
	return user.Email, nil
}
