package account_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/okulib/circulate/internal/account"
)

func blockedAccount(id uuid.UUID) *account.Account {
	return &account.Account{
		ID:        id,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Status:    account.StatusBlocked,
		CanBorrow: false,
		MaxBooks:  3,
	}
}

func TestService_Unblock(t *testing.T) {
	id := uuid.New()

	type testCase struct {
		name      string
		setupMock func(repo *account.MockRepository, fines *account.MockFineLedger)
		wantErr   error
	}

	tests := []testCase{
		{
			name: "Success",
			setupMock: func(repo *account.MockRepository, fines *account.MockFineLedger) {
				repo.EXPECT().Get(gomock.Any(), id).Return(blockedAccount(id), nil)
				fines.EXPECT().UnpaidFines(gomock.Any(), id).Return(int64(0), nil)
				repo.EXPECT().SetStatus(gomock.Any(), id, account.StatusApproved, true).Return(nil)
			},
		},
		{
			name: "RefusedWhileFinesOutstanding",
			setupMock: func(repo *account.MockRepository, fines *account.MockFineLedger) {
				repo.EXPECT().Get(gomock.Any(), id).Return(blockedAccount(id), nil)
				fines.EXPECT().UnpaidFines(gomock.Any(), id).Return(int64(2500), nil)
			},
			wantErr: account.ErrUnpaidFines,
		},
		{
			name: "UnknownAccount",
			setupMock: func(repo *account.MockRepository, fines *account.MockFineLedger) {
				repo.EXPECT().Get(gomock.Any(), id).Return(nil, account.ErrNotFound)
			},
			wantErr: account.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := account.NewMockRepository(ctrl)
			fines := account.NewMockFineLedger(ctrl)
			tt.setupMock(repo, fines)

			svc := account.NewService(repo, fines)

			err := svc.Unblock(context.Background(), id)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestService_Approve(t *testing.T) {
	id := uuid.New()

	ctrl := gomock.NewController(t)
	repo := account.NewMockRepository(ctrl)
	fines := account.NewMockFineLedger(ctrl)

	acct := blockedAccount(id)
	acct.Status = account.StatusUnapproved

	repo.EXPECT().Get(gomock.Any(), id).Return(acct, nil)
	repo.EXPECT().SetStatus(gomock.Any(), id, account.StatusApproved, true).Return(nil)

	svc := account.NewService(repo, fines)

	require.NoError(t, svc.Approve(context.Background(), id))
}

func TestService_Block(t *testing.T) {
	id := uuid.New()

	ctrl := gomock.NewController(t)
	repo := account.NewMockRepository(ctrl)
	fines := account.NewMockFineLedger(ctrl)

	acct := blockedAccount(id)
	acct.Status = account.StatusApproved
	acct.CanBorrow = true

	repo.EXPECT().Get(gomock.Any(), id).Return(acct, nil)
	repo.EXPECT().SetStatus(gomock.Any(), id, account.StatusBlocked, false).Return(nil)

	svc := account.NewService(repo, fines)

	require.NoError(t, svc.Block(context.Background(), id))
}
