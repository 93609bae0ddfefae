package loan_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/okulib/circulate/internal/loan"
)

// Drives one loan through its whole life against a single stateful
// mocked ledger: request, approval, an overdue sweep writing the fine,
// a rival request refused while the book is out, and a paid return
// that freezes the swept amount.
func TestLendingLifecycle(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	var (
		ledger   = loan.NewMockLedger(ctrl)
		tx       = loan.NewMockLedgerTx(ctrl)
		accounts = loan.NewMockAccounts(ctrl)
		catalog  = loan.NewMockCatalog(ctrl)
		notifier = loan.NewMockNotifier(ctrl)
	)

	patronID := uuid.New()
	rivalID := uuid.New()
	bookID := uuid.New()

	now := testNow
	clock := func() time.Time { return now }

	svc := loan.NewService(ledger, accounts, catalog, testTariff, loan.WithClock(clock))
	sweeper := loan.NewSweeper(ledger, notifier, testTariff, time.Hour,
		loan.WithSweepClock(clock))

	// The ledger's single row, shared by every operation below.
	var held *loan.Loan

	accounts.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(borrower(3), nil).AnyTimes()
	catalog.EXPECT().Exists(gomock.Any(), bookID).Return(true, nil).AnyTimes()
	catalog.EXPECT().Title(gomock.Any(), bookID).Return("Dune", nil).AnyTimes()
	notifier.EXPECT().NotifyOverdue(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	ledger.EXPECT().Begin(gomock.Any(), gomock.Any()).Return(tx, nil).AnyTimes()
	tx.EXPECT().Commit().Return(nil).AnyTimes()
	tx.EXPECT().Rollback().Return(nil).AnyTimes()

	ledger.EXPECT().Get(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uuid.UUID) (*loan.Loan, error) {
			return held, nil
		}).AnyTimes()
	ledger.EXPECT().ListActive(gomock.Any()).
		DoAndReturn(func(context.Context) ([]*loan.Loan, error) {
			return []*loan.Loan{held}, nil
		}).AnyTimes()

	tx.EXPECT().GetForUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uuid.UUID) (*loan.Loan, error) {
			return held, nil
		}).AnyTimes()
	tx.EXPECT().ActiveForBook(gomock.Any(), bookID).
		DoAndReturn(func(context.Context, uuid.UUID) (*loan.Loan, error) {
			if held != nil && held.Active() {
				return held, nil
			}
			return nil, nil
		}).AnyTimes()
	tx.EXPECT().ActiveCountForUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, userID uuid.UUID) (int, error) {
			if held != nil && held.Active() && held.UserID == userID {
				return 1, nil
			}
			return 0, nil
		}).AnyTimes()
	tx.EXPECT().Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, l *loan.Loan) error {
			held = l
			return nil
		}).Times(2)
	tx.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	tx.EXPECT().AccountBlocked(gomock.Any(), patronID).Return(false, nil).AnyTimes()

	// Patron requests the book.
	requested, err := svc.Request(ctx, patronID, bookID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatePending, requested.State)

	// Operator approves it at testNow.
	approved, err := svc.Approve(ctx, requested.ID)
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, testNow, *approved.ApprovedAt)

	// Fifteen days on, the sweep writes the accrued fine back.
	now = testNow.AddDate(0, 0, 15)

	report := sweeper.RunOnce(ctx)
	assert.Equal(t, 1, report.Updated)
	assert.Empty(t, report.Errors)
	assert.Equal(t, int64(2500), held.FineAmount)

	// A rival request bounces off the custody slot while the book is out.
	_, err = svc.Request(ctx, rivalID, bookID)
	assert.ErrorIs(t, err, loan.ErrConflict)

	// A paid return ends custody and freezes the swept amount.
	returned, err := svc.Return(ctx, requested.ID, true)
	require.NoError(t, err)
	assert.Equal(t, loan.StateReturned, returned.State)
	assert.True(t, returned.FinePaid)
	assert.Equal(t, int64(2500), returned.FineAmount)

	// The slot is free again: the rival's request now goes through.
	second, err := svc.Request(ctx, rivalID, bookID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatePending, second.State)
}
