// Package notify emits best-effort lending notifications. Delivery is
// fire-and-forget: a failure is reported to the caller for bookkeeping
// and never retried here.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/okulib/circulate/internal/loan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Log writes notifications to the structured log. It stands in for the
// mail collaborator in development and in the sweep CLI.
type Log struct{}

func NewLog() *Log {
	return &Log{}
}

func (n *Log) NotifyOverdue(_ context.Context, l *loan.Loan, daysOverdue int) error {
	slog.Info("overdue reminder",
		"loan_id", l.ID,
		"user_id", l.UserID,
		"book_title", l.BookTitle,
		"fine_amount", l.FineAmount,
		"days_overdue", daysOverdue,
	)

	return nil
}

func (n *Log) NotifyBlocked(_ context.Context, userID uuid.UUID, l *loan.Loan) error {
	slog.Info("account blocked notice",
		"user_id", userID,
		"loan_id", l.ID,
		"book_title", l.BookTitle,
		"fine_amount", l.FineAmount,
	)

	return nil
}

// Webhook posts notification events to the mail collaborator's intake
// endpoint.
type Webhook struct {
	client *http.Client
	url    string
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
	}
}

type event struct {
	Type        string    `json:"type"`
	LoanID      uuid.UUID `json:"loan_id"`
	UserID      uuid.UUID `json:"user_id"`
	UserName    string    `json:"user_name,omitempty"`
	BookTitle   string    `json:"book_title,omitempty"`
	FineAmount  int64     `json:"fine_amount"`
	DaysOverdue int       `json:"days_overdue,omitempty"`
}

func (n *Webhook) NotifyOverdue(ctx context.Context, l *loan.Loan, daysOverdue int) error {
	return n.post(ctx, event{
		Type:        "overdue_reminder",
		LoanID:      l.ID,
		UserID:      l.UserID,
		UserName:    l.UserName,
		BookTitle:   l.BookTitle,
		FineAmount:  l.FineAmount,
		DaysOverdue: daysOverdue,
	})
}

func (n *Webhook) NotifyBlocked(ctx context.Context, userID uuid.UUID, l *loan.Loan) error {
	return n.post(ctx, event{
		Type:       "account_blocked",
		LoanID:     l.ID,
		UserID:     userID,
		UserName:   l.UserName,
		BookTitle:  l.BookTitle,
		FineAmount: l.FineAmount,
	})
}

func (n *Webhook) post(ctx context.Context, ev event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", ev.Type, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s event: %w", ev.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("posting %s event: unexpected status %d", ev.Type, resp.StatusCode)
	}

	return nil
}
