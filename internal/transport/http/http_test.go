package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/mailrelay/internal/domain"
	"github.com/strogmv/mailrelay/internal/service"
)

type RegistrarMock struct {
	RegisterFunc func(ctx context.Context, req service.RegisterRequest) (service.RegisterResponse, error)
	ConfirmFunc  func(ctx context.Context, token string) (string, error)
}

func (m *RegistrarMock) Register(ctx context.Context, req service.RegisterRequest) (service.RegisterResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return service.RegisterResponse{}, nil
}

func (m *RegistrarMock) Confirm(ctx context.Context, token string) (string, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, token)
	}
	return "", nil
}

func newTestRouter(reg Registrar, checks ...Check) http.Handler {
	return NewRouter(NewAuthHandler(reg), RouterConfig{AllowedOrigins: []string{"*"}, Checks: checks})
}

func TestRegisterEndpoint(t *testing.T) {
	userID := uuid.New()
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "created", body: `{"email":"a@example.com","password":"password123"}`, status: http.StatusCreated},
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "validation", body: `{"email":"x","password":"p"}`, err: fmt.Errorf("%w: email", domain.ErrValidation), status: http.StatusBadRequest},
		{name: "duplicate", body: `{"email":"a@example.com","password":"password123"}`, err: domain.ErrEmailTaken, status: http.StatusConflict},
		{name: "internal", body: `{"email":"a@example.com","password":"password123"}`, err: errors.New("db down"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &RegistrarMock{RegisterFunc: func(_ context.Context, req service.RegisterRequest) (service.RegisterResponse, error) {
				if tt.err != nil {
					return service.RegisterResponse{}, tt.err
				}
				return service.RegisterResponse{UserID: userID, Email: req.Email}, nil
			}}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			newTestRouter(reg).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusCreated {
				var body registerResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, userID, body.UserID)
				assert.Equal(t, "a@example.com", body.Email)
			}
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "db down")
			}
		})
	}
}

func TestConfirmEndpoint(t *testing.T) {
	reg := &RegistrarMock{ConfirmFunc: func(_ context.Context, token string) (string, error) {
		if token == "good" {
			return "a@example.com", nil
		}
		return "", domain.ErrInvalidToken
	}}
	router := newTestRouter(reg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/register_confirm?token=good", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body confirmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a@example.com", body.Email)

	for _, target := range []string{"/auth/register_confirm?token=bad", "/auth/register_confirm"} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ok := Check{Name: "redis", Fn: func(context.Context) error { return nil }}
	down := Check{Name: "nats", Fn: func(context.Context) error { return errors.New("disconnected") }}

	rec := httptest.NewRecorder()
	newTestRouter(&RegistrarMock{}, ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(&RegistrarMock{}, ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(&RegistrarMock{}, ok, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disconnected")

	rec = httptest.NewRecorder()
	newTestRouter(&RegistrarMock{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mailrelay_http_requests_total")
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, unmatchedRoute, routeLabel(httptest.NewRequest(http.MethodGet, "/anything", nil)))

	var got string
	r := chi.NewRouter()
	r.Get("/users/{id}", func(_ http.ResponseWriter, r *http.Request) { got = routeLabel(r) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/42", nil))
	assert.Equal(t, "/users/{id}", got)
}
