// Code generated by MockGen. DO NOT EDIT.
// Source: service.go
//
// Generated by this command:
//
//	mockgen -source=service.go -destination=service_mock.go -package=account
//

// Package account is a generated GoMock package.
package account

import (
	context "context"
	reflect "reflect"

	uuid "github.com/google/uuid"
	gomock "go.uber.org/mock/gomock"
)

// MockRepository is a mock of Repository interface.
type MockRepository struct {
	ctrl     *gomock.Controller
	recorder *MockRepositoryMockRecorder
}

// MockRepositoryMockRecorder is the mock recorder for MockRepository.
type MockRepositoryMockRecorder struct {
	mock *MockRepository
}

// NewMockRepository creates a new mock instance.
func NewMockRepository(ctrl *gomock.Controller) *MockRepository {
	mock := &MockRepository{ctrl: ctrl}
	mock.recorder = &MockRepositoryMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockRepository) EXPECT() *MockRepositoryMockRecorder {
	return m.recorder
}

// Get mocks base method.
func (m *MockRepository) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", ctx, id)
	ret0, _ := ret[0].(*Account)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Get indicates an expected call of Get.
func (mr *MockRepositoryMockRecorder) Get(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockRepository)(nil).Get), ctx, id)
}

// ListByStatus mocks base method.
func (m *MockRepository) ListByStatus(ctx context.Context, status Status) ([]*Account, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListByStatus", ctx, status)
	ret0, _ := ret[0].([]*Account)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListByStatus indicates an expected call of ListByStatus.
func (mr *MockRepositoryMockRecorder) ListByStatus(ctx, status any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListByStatus", reflect.TypeOf((*MockRepository)(nil).ListByStatus), ctx, status)
}

// SetStatus mocks base method.
func (m *MockRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status, canBorrow bool) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetStatus", ctx, id, status, canBorrow)
	ret0, _ := ret[0].(error)
	return ret0
}

// SetStatus indicates an expected call of SetStatus.
func (mr *MockRepositoryMockRecorder) SetStatus(ctx, id, status, canBorrow any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetStatus", reflect.TypeOf((*MockRepository)(nil).SetStatus), ctx, id, status, canBorrow)
}

// MockFineLedger is a mock of FineLedger interface.
type MockFineLedger struct {
	ctrl     *gomock.Controller
	recorder *MockFineLedgerMockRecorder
}

// MockFineLedgerMockRecorder is the mock recorder for MockFineLedger.
type MockFineLedgerMockRecorder struct {
	mock *MockFineLedger
}

// NewMockFineLedger creates a new mock instance.
func NewMockFineLedger(ctrl *gomock.Controller) *MockFineLedger {
	mock := &MockFineLedger{ctrl: ctrl}
	mock.recorder = &MockFineLedgerMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockFineLedger) EXPECT() *MockFineLedgerMockRecorder {
	return m.recorder
}

// UnpaidFines mocks base method.
func (m *MockFineLedger) UnpaidFines(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UnpaidFines", ctx, userID)
	ret0, _ := ret[0].(int64)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// UnpaidFines indicates an expected call of UnpaidFines.
func (mr *MockFineLedgerMockRecorder) UnpaidFines(ctx, userID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UnpaidFines", reflect.TypeOf((*MockFineLedger)(nil).UnpaidFines), ctx, userID)
}
