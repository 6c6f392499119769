// Package errors renders HTTP errors as RFC 7807 problem details.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// AppError is an error with an HTTP status and a client-safe message.
type AppError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func New(status int, title, detail string) *AppError {
	return &AppError{Status: status, Title: title, Detail: detail}
}

func (e *AppError) Error() string {
	if e.Detail == "" {
		return e.Title
	}
	return e.Title + ": " + e.Detail
}

type problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes err as application/problem+json. Errors that are not an
// AppError become a bare 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = New(http.StatusInternalServerError, "Internal Server Error", "")
	}
	p := problem{
		Type:   "about:blank",
		Title:  appErr.Title,
		Status: appErr.Status,
		Detail: appErr.Detail,
	}
	if r != nil {
		p.Instance = r.URL.Path
		p.RequestID = middleware.GetReqID(r.Context())
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(p)
}
