package loan

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/http/auth"
	"github.com/okulib/circulate/internal/loan"
)

type Handler struct {
	svc     *loan.Service
	sweeper *loan.Sweeper
}

func NewHandler(svc *loan.Service, sweeper *loan.Sweeper) *Handler {
	return &Handler{svc: svc, sweeper: sweeper}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.request)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/user/{userID}", h.listForUser)
	r.Get("/book/{bookID}/active", h.activeForBook)
	r.Post("/{id}/return", h.returnLoan)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
		r.Post("/{id}/settle", h.settle)
	})
}

// writeError maps the engine's taxonomy onto status codes. Every
// rejection keeps its entity and invariant detail in the body.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loan.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, loan.ErrInvalidState), errors.Is(err, loan.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, loan.ErrLimitExceeded):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, loan.ErrPermission):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, loan.ErrUnavailable):
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
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

type requestLoanRequest struct {
	BookID uuid.UUID  `json:"book_id"`
	UserID *uuid.UUID `json:"user_id,omitempty"` // admins may request on a patron's behalf
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req requestLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := claims.UserID
	if req.UserID != nil && claims.Role == auth.RoleAdmin {
		userID = *req.UserID
	}

	l, err := h.svc.Request(r.Context(), userID, req.BookID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(l))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Patrons only see their own loans.
	if claims.Role != auth.RoleAdmin {
		loans, err := h.svc.ListForUser(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponseList(loans))

		return
	}

	filter := loan.ListFilter{}

	if s := r.URL.Query().Get("state"); s != "" {
		state := loan.State(s)
		filter.State = &state
	}

	if s := r.URL.Query().Get("start_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.StartDate = &t
		}
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.EndDate = &t
		}
	}

	loans, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(loans))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	l, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Role != auth.RoleAdmin && claims.UserID != l.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(l))
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Role != auth.RoleAdmin && claims.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	loans, err := h.svc.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(loans))
}

func (h *Handler) activeForBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := uuid.Parse(chi.URLParam(r, "bookID"))
	if err != nil {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}

	loans, err := h.svc.ListActiveForBook(r.Context(), bookID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(loans))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	l, err := h.svc.Approve(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(l))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	l, err := h.svc.Reject(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(l))
}

type returnLoanRequest struct {
	FinePaid bool `json:"fine_paid"`
}

func (h *Handler) returnLoan(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req returnLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if claims.Role != auth.RoleAdmin {
		l, err := h.svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		if l.UserID != claims.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		// Only operators may assert the fine was settled at the desk.
		req.FinePaid = false
	}

	l, err := h.svc.Return(r.Context(), id, req.FinePaid)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(l))
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	l, err := h.svc.SettleFine(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(l))
}

// Sweep triggers one overdue sweep and returns its report.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	report := h.sweeper.RunOnce(r.Context())

	writeJSON(w, http.StatusOK, report)
}
