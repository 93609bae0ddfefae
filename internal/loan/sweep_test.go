package loan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/okulib/circulate/internal/loan"
)

type sweepMocks struct {
	ledger   *loan.MockLedger
	tx       *loan.MockLedgerTx
	notifier *loan.MockNotifier
}

func newSweeper(t *testing.T, now time.Time) (*loan.Sweeper, *sweepMocks) {
	t.Helper()

	ctrl := gomock.NewController(t)

	m := &sweepMocks{
		ledger:   loan.NewMockLedger(ctrl),
		tx:       loan.NewMockLedgerTx(ctrl),
		notifier: loan.NewMockNotifier(ctrl),
	}

	sweeper := loan.NewSweeper(m.ledger, m.notifier, testTariff, time.Hour,
		loan.WithSweepClock(func() time.Time { return now }))

	return sweeper, m
}

func activeLoan(approvedAt time.Time, fineAmount int64) *loan.Loan {
	return &loan.Loan{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		BookID:      uuid.New(),
		BookTitle:   "Snow Crash",
		State:       loan.StateApproved,
		RequestedAt: approvedAt.AddDate(0, 0, -1),
		ApprovedAt:  &approvedAt,
		FineAmount:  fineAmount,
	}
}

func (m *sweepMocks) expectLoanTx(l *loan.Loan) {
	m.ledger.EXPECT().Get(gomock.Any(), l.ID).Return(l, nil)
	m.ledger.EXPECT().Begin(gomock.Any(), gomock.Any()).Return(m.tx, nil)
	m.tx.EXPECT().GetForUpdate(gomock.Any(), l.ID).Return(l, nil)
	m.tx.EXPECT().Commit().Return(nil)
	m.tx.EXPECT().Rollback().Return(nil).AnyTimes()
}

func TestSweeper_RunOnce_WritesFineAndSendsReminder(t *testing.T) {
	sweeper, m := newSweeper(t, testNow)

	l := activeLoan(testNow.AddDate(0, 0, -15), 2000) // 5 days overdue, stale fine

	m.ledger.EXPECT().ListActive(gomock.Any()).Return([]*loan.Loan{l}, nil)
	m.expectLoanTx(l)
	m.tx.EXPECT().Update(gomock.Any(), l).Return(nil)
	m.notifier.EXPECT().NotifyOverdue(gomock.Any(), l, 5).Return(nil)

	report := sweeper.RunOnce(context.Background())

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Reminded)
	assert.Equal(t, 0, report.Blocked)
	assert.Empty(t, report.Errors)
	assert.Equal(t, int64(2500), l.FineAmount)
}

func TestSweeper_RunOnce_NeverDecreasesFine(t *testing.T) {
	sweeper, m := newSweeper(t, testNow)

	// Recorded fine exceeds the recomputed one; the sweep must not
	// shrink it, only remind.
	l := activeLoan(testNow.AddDate(0, 0, -15), 3000)

	m.ledger.EXPECT().ListActive(gomock.Any()).Return([]*loan.Loan{l}, nil)
	m.expectLoanTx(l)
	m.notifier.EXPECT().NotifyOverdue(gomock.Any(), l, 5).Return(nil)

	report := sweeper.RunOnce(context.Background())

	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 1, report.Reminded)
	assert.Equal(t, int64(3000), l.FineAmount)
}

func TestSweeper_RunOnce_BlocksAtCap(t *testing.T) {
	sweeper, m := newSweeper(t, testNow)

	l := activeLoan(testNow.AddDate(0, 0, -120), 0) // far past the cap

	m.ledger.EXPECT().ListActive(gomock.Any()).Return([]*loan.Loan{l}, nil)
	m.expectLoanTx(l)
	m.tx.EXPECT().Update(gomock.Any(), l).Return(nil)
	m.tx.EXPECT().AccountBlocked(gomock.Any(), l.UserID).Return(false, nil)
	m.tx.EXPECT().SetAccountBlocked(gomock.Any(), l.UserID, true).Return(nil)
	m.notifier.EXPECT().NotifyBlocked(gomock.Any(), l.UserID, l).Return(nil)
	m.notifier.EXPECT().NotifyOverdue(gomock.Any(), l, 110).Return(nil)

	report := sweeper.RunOnce(context.Background())

	assert.Equal(t, 1, report.Blocked)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, int64(50000), l.FineAmount)
	assert.Empty(t, report.Errors)
}

func TestSweeper_RunOnce_AlreadyBlockedNotReblocked(t *testing.T) {
	sweeper, m := newSweeper(t, testNow)

	l := activeLoan(testNow.AddDate(0, 0, -120), 50000)

	m.ledger.EXPECT().ListActive(gomock.Any()).Return([]*loan.Loan{l}, nil)
	m.expectLoanTx(l)
	m.tx.EXPECT().AccountBlocked(gomock.Any(), l.UserID).Return(true, nil)
	m.notifier.EXPECT().NotifyOverdue(gomock.Any(), l, 110).Return(nil)

	report := sweeper.RunOnce(context.Background())

	assert.Equal(t, 0, report.Blocked)
	assert.Equal(t, 0, report.Updated)
}

func TestSweeper_RunOnce_ReminderFailureDoesNotAbortSweep(t *testing.T) {
	sweeper, m := newSweeper(t, testNow)

	failing := activeLoan(testNow.AddDate(0, 0, -15), 2500)
	healthy := activeLoan(testNow.AddDate(0, 0, -12), 0)

	m.ledger.EXPECT().ListActive(gomock.Any()).Return([]*loan.Loan{failing, healthy}, nil)

	m.expectLoanTx(failing)
	m.notifier.EXPECT().NotifyOverdue(gomock.Any(), failing, 5).
		Return(errors.New("webhook timeout"))

	m.expectLoanTx(healthy)
	m.tx.EXPECT().Update(gomock.Any(), healthy).Return(nil)
	m.notifier.EXPECT().NotifyOverdue(gomock.Any(), healthy, 2).Return(nil)

	report := sweeper.RunOnce(context.Background())

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Reminded)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, failing.ID, report.Errors[0].LoanID)
	assert.Contains(t, report.Errors[0].Err, "webhook timeout")
}

func TestSweeper_RunOnce_WithinGraceNothingToDo(t *testing.T) {
	sweeper, m := newSweeper(t, testNow)

	l := activeLoan(testNow.AddDate(0, 0, -5), 0)

	m.ledger.EXPECT().ListActive(gomock.Any()).Return([]*loan.Loan{l}, nil)
	m.expectLoanTx(l)

	report := sweeper.RunOnce(context.Background())

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Reminded)
	assert.Equal(t, int64(0), l.FineAmount)
}

func TestSweeper_RunOnce_SkipsLoanReturnedSinceScan(t *testing.T) {
	sweeper, m := newSweeper(t, testNow)

	returnedAt := testNow.Add(-time.Hour)
	l := activeLoan(testNow.AddDate(0, 0, -15), 2500)
	l.State = loan.StateReturned
	l.ReturnedAt = &returnedAt

	m.ledger.EXPECT().ListActive(gomock.Any()).Return([]*loan.Loan{l}, nil)
	m.ledger.EXPECT().Get(gomock.Any(), l.ID).Return(l, nil)

	report := sweeper.RunOnce(context.Background())

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Updated)
	assert.Empty(t, report.Errors)
}

func TestSweeper_RunOnce_ListFailureReported(t *testing.T) {
	sweeper, m := newSweeper(t, testNow)

	m.ledger.EXPECT().ListActive(gomock.Any()).Return(nil, errors.New("connection refused"))

	report := sweeper.RunOnce(context.Background())

	assert.Equal(t, 0, report.Scanned)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Err, "connection refused")
}
