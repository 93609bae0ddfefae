package account

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/account"
	"github.com/okulib/circulate/internal/http/auth"
)

type Handler struct {
	svc *account.Service
}

func NewHandler(svc *account.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Get("/blocked", h.listBlocked)
		r.Get("/unapproved", h.listUnapproved)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/block", h.block)
		r.Post("/{id}/unblock", h.unblock)
	})
}

type accountResponse struct {
	ID        uuid.UUID      `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Role      string         `json:"role"`
	Status    account.Status `json:"status"`
	CanBorrow bool           `json:"can_borrow"`
	MaxBooks  int            `json:"max_books"`
	CreatedAt time.Time      `json:"created_at"`
}

func toResponse(a *account.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Role:      a.Role,
		Status:    a.Status,
		CanBorrow: a.CanBorrow,
		MaxBooks:  a.MaxBooks,
		CreatedAt: a.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, account.ErrUnpaidFines):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Role != auth.RoleAdmin && claims.UserID != id {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) listBlocked(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, h.svc.ListBlocked)
}

func (h *Handler) listUnapproved(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, h.svc.ListUnapproved)
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, list func(ctx context.Context) ([]*account.Account, error)) {
	accounts, err := list(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		resp[i] = toResponse(a)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.svc.Approve)
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.svc.Block)
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.svc.Unblock)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
