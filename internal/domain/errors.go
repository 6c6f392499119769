package domain

import "errors"

var (
	ErrOutboxRecordNotFound = errors.New("outbox record not found")
	ErrInvalidStatus        = errors.New("invalid outbox status")
	ErrInvalidTransition    = errors.New("invalid outbox status transition")
	ErrMalformedEnvelope    = errors.New("malformed delivery envelope")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already exists")
	ErrInvalidToken         = errors.New("invalid confirmation token")
	ErrValidation           = errors.New("validation failed")
	ErrDeadLetterNotFound   = errors.New("dead letter not found")
)
