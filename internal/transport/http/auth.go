package http

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/pkg/errors"
	"github.com/strogmv/mailrelay/internal/pkg/logger"
	"github.com/strogmv/mailrelay/internal/service"
)

type Registrar interface {
	Register(ctx context.Context, req service.RegisterRequest) (service.RegisterResponse, error)
	Confirm(ctx context.Context, token string) (string, error)
}

type registerResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	Message string    `json:"message"`
}

type confirmResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

type AuthHandler struct {
	reg Registrar
}

func NewAuthHandler(reg Registrar) *AuthHandler {
	return &AuthHandler{reg: reg}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeJSONRequest(r, &req); err != nil {
		errors.WriteError(w, r, errors.New(http.StatusBadRequest, "Bad Request", "invalid JSON body"))
		return
	}
	resp, err := h.reg.Register(r.Context(), req)
	switch {
	case err == nil:
	case stderrors.Is(err, domain.ErrValidation):
		errors.WriteError(w, r, errors.New(http.StatusBadRequest, "Bad Request", err.Error()))
		return
	case stderrors.Is(err, domain.ErrEmailTaken):
		errors.WriteError(w, r, errors.New(http.StatusConflict, "Conflict", "email already exists"))
		return
	default:
		logger.From(r.Context()).Error("register failed", "error", err)
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:  resp.UserID,
		Email:   resp.Email,
		Message: "registration accepted, check your inbox to confirm",
	})
}

func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		errors.WriteError(w, r, errors.New(http.StatusBadRequest, "Bad Request", "token is required"))
		return
	}
	email, err := h.reg.Confirm(r.Context(), token)
	switch {
	case err == nil:
	case stderrors.Is(err, domain.ErrInvalidToken):
		errors.WriteError(w, r, errors.New(http.StatusBadRequest, "Bad Request", "invalid or expired token"))
		return
	default:
		logger.From(r.Context()).Error("confirm failed", "error", err)
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Message: "email confirmed", Email: email})
}
