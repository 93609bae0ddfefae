// Code generated by MockGen. DO NOT EDIT.
// Source: service.go
//
// Generated by this command:
//
//	mockgen -source=service.go -destination=service_mock.go -package=loan
//

// Package loan is a generated GoMock package.
package loan

import (
	context "context"
	reflect "reflect"

	uuid "github.com/google/uuid"
	gomock "go.uber.org/mock/gomock"
)

// MockLedger is a mock of Ledger interface.
type MockLedger struct {
	ctrl     *gomock.Controller
	recorder *MockLedgerMockRecorder
}

// MockLedgerMockRecorder is the mock recorder for MockLedger.
type MockLedgerMockRecorder struct {
	mock *MockLedger
}

// NewMockLedger creates a new mock instance.
func NewMockLedger(ctrl *gomock.Controller) *MockLedger {
	mock := &MockLedger{ctrl: ctrl}
	mock.recorder = &MockLedgerMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockLedger) EXPECT() *MockLedgerMockRecorder {
	return m.recorder
}

// Begin mocks base method.
func (m *MockLedger) Begin(ctx context.Context, keys ...LockKey) (LedgerTx, error) {
	m.ctrl.T.Helper()
	varargs := []any{ctx}
	for _, a := range keys {
		varargs = append(varargs, a)
	}
	ret := m.ctrl.Call(m, "Begin", varargs...)
	ret0, _ := ret[0].(LedgerTx)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Begin indicates an expected call of Begin.
func (mr *MockLedgerMockRecorder) Begin(ctx any, keys ...any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	varargs := append([]any{ctx}, keys...)
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Begin", reflect.TypeOf((*MockLedger)(nil).Begin), varargs...)
}

// Get mocks base method.
func (m *MockLedger) Get(ctx context.Context, id uuid.UUID) (*Loan, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", ctx, id)
	ret0, _ := ret[0].(*Loan)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Get indicates an expected call of Get.
func (mr *MockLedgerMockRecorder) Get(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockLedger)(nil).Get), ctx, id)
}

// List mocks base method.
func (m *MockLedger) List(ctx context.Context, filter ListFilter) ([]*Loan, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "List", ctx, filter)
	ret0, _ := ret[0].([]*Loan)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// List indicates an expected call of List.
func (mr *MockLedgerMockRecorder) List(ctx, filter any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "List", reflect.TypeOf((*MockLedger)(nil).List), ctx, filter)
}

// ListActive mocks base method.
func (m *MockLedger) ListActive(ctx context.Context) ([]*Loan, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListActive", ctx)
	ret0, _ := ret[0].([]*Loan)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListActive indicates an expected call of ListActive.
func (mr *MockLedgerMockRecorder) ListActive(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListActive", reflect.TypeOf((*MockLedger)(nil).ListActive), ctx)
}

// ListActiveForBook mocks base method.
func (m *MockLedger) ListActiveForBook(ctx context.Context, bookID uuid.UUID) ([]*Loan, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListActiveForBook", ctx, bookID)
	ret0, _ := ret[0].([]*Loan)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListActiveForBook indicates an expected call of ListActiveForBook.
func (mr *MockLedgerMockRecorder) ListActiveForBook(ctx, bookID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListActiveForBook", reflect.TypeOf((*MockLedger)(nil).ListActiveForBook), ctx, bookID)
}

// ListForUser mocks base method.
func (m *MockLedger) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListForUser", ctx, userID)
	ret0, _ := ret[0].([]*Loan)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListForUser indicates an expected call of ListForUser.
func (mr *MockLedgerMockRecorder) ListForUser(ctx, userID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListForUser", reflect.TypeOf((*MockLedger)(nil).ListForUser), ctx, userID)
}

// MockLedgerTx is a mock of LedgerTx interface.
type MockLedgerTx struct {
	ctrl     *gomock.Controller
	recorder *MockLedgerTxMockRecorder
}

// MockLedgerTxMockRecorder is the mock recorder for MockLedgerTx.
type MockLedgerTxMockRecorder struct {
	mock *MockLedgerTx
}

// NewMockLedgerTx creates a new mock instance.
func NewMockLedgerTx(ctrl *gomock.Controller) *MockLedgerTx {
	mock := &MockLedgerTx{ctrl: ctrl}
	mock.recorder = &MockLedgerTxMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockLedgerTx) EXPECT() *MockLedgerTxMockRecorder {
	return m.recorder
}

// AccountBlocked mocks base method.
func (m *MockLedgerTx) AccountBlocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AccountBlocked", ctx, userID)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// AccountBlocked indicates an expected call of AccountBlocked.
func (mr *MockLedgerTxMockRecorder) AccountBlocked(ctx, userID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AccountBlocked", reflect.TypeOf((*MockLedgerTx)(nil).AccountBlocked), ctx, userID)
}

// ActiveCountForUser mocks base method.
func (m *MockLedgerTx) ActiveCountForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ActiveCountForUser", ctx, userID)
	ret0, _ := ret[0].(int)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ActiveCountForUser indicates an expected call of ActiveCountForUser.
func (mr *MockLedgerTxMockRecorder) ActiveCountForUser(ctx, userID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ActiveCountForUser", reflect.TypeOf((*MockLedgerTx)(nil).ActiveCountForUser), ctx, userID)
}

// ActiveForBook mocks base method.
func (m *MockLedgerTx) ActiveForBook(ctx context.Context, bookID uuid.UUID) (*Loan, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ActiveForBook", ctx, bookID)
	ret0, _ := ret[0].(*Loan)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ActiveForBook indicates an expected call of ActiveForBook.
func (mr *MockLedgerTxMockRecorder) ActiveForBook(ctx, bookID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ActiveForBook", reflect.TypeOf((*MockLedgerTx)(nil).ActiveForBook), ctx, bookID)
}

// Commit mocks base method.
func (m *MockLedgerTx) Commit() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Commit")
	ret0, _ := ret[0].(error)
	return ret0
}

// Commit indicates an expected call of Commit.
func (mr *MockLedgerTxMockRecorder) Commit() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Commit", reflect.TypeOf((*MockLedgerTx)(nil).Commit))
}

// GetForUpdate mocks base method.
func (m *MockLedgerTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Loan, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetForUpdate", ctx, id)
	ret0, _ := ret[0].(*Loan)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetForUpdate indicates an expected call of GetForUpdate.
func (mr *MockLedgerTxMockRecorder) GetForUpdate(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetForUpdate", reflect.TypeOf((*MockLedgerTx)(nil).GetForUpdate), ctx, id)
}

// Insert mocks base method.
func (m *MockLedgerTx) Insert(ctx context.Context, l *Loan) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Insert", ctx, l)
	ret0, _ := ret[0].(error)
	return ret0
}

// Insert indicates an expected call of Insert.
func (mr *MockLedgerTxMockRecorder) Insert(ctx, l any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Insert", reflect.TypeOf((*MockLedgerTx)(nil).Insert), ctx, l)
}

// Rollback mocks base method.
func (m *MockLedgerTx) Rollback() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Rollback")
	ret0, _ := ret[0].(error)
	return ret0
}

// Rollback indicates an expected call of Rollback.
func (mr *MockLedgerTxMockRecorder) Rollback() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Rollback", reflect.TypeOf((*MockLedgerTx)(nil).Rollback))
}

// SetAccountBlocked mocks base method.
func (m *MockLedgerTx) SetAccountBlocked(ctx context.Context, userID uuid.UUID, blocked bool) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetAccountBlocked", ctx, userID, blocked)
	ret0, _ := ret[0].(error)
	return ret0
}

// SetAccountBlocked indicates an expected call of SetAccountBlocked.
func (mr *MockLedgerTxMockRecorder) SetAccountBlocked(ctx, userID, blocked any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetAccountBlocked", reflect.TypeOf((*MockLedgerTx)(nil).SetAccountBlocked), ctx, userID, blocked)
}

// UnpaidFines mocks base method.
func (m *MockLedgerTx) UnpaidFines(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UnpaidFines", ctx, userID)
	ret0, _ := ret[0].(int64)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// UnpaidFines indicates an expected call of UnpaidFines.
func (mr *MockLedgerTxMockRecorder) UnpaidFines(ctx, userID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UnpaidFines", reflect.TypeOf((*MockLedgerTx)(nil).UnpaidFines), ctx, userID)
}

// Update mocks base method.
func (m *MockLedgerTx) Update(ctx context.Context, l *Loan) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Update", ctx, l)
	ret0, _ := ret[0].(error)
	return ret0
}

// Update indicates an expected call of Update.
func (mr *MockLedgerTxMockRecorder) Update(ctx, l any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Update", reflect.TypeOf((*MockLedgerTx)(nil).Update), ctx, l)
}

// MockAccounts is a mock of Accounts interface.
type MockAccounts struct {
	ctrl     *gomock.Controller
	recorder *MockAccountsMockRecorder
}

// MockAccountsMockRecorder is the mock recorder for MockAccounts.
type MockAccountsMockRecorder struct {
	mock *MockAccounts
}

// NewMockAccounts creates a new mock instance.
func NewMockAccounts(ctrl *gomock.Controller) *MockAccounts {
	mock := &MockAccounts{ctrl: ctrl}
	mock.recorder = &MockAccountsMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockAccounts) EXPECT() *MockAccountsMockRecorder {
	return m.recorder
}

// Lookup mocks base method.
func (m *MockAccounts) Lookup(ctx context.Context, userID uuid.UUID) (AccountInfo, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Lookup", ctx, userID)
	ret0, _ := ret[0].(AccountInfo)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Lookup indicates an expected call of Lookup.
func (mr *MockAccountsMockRecorder) Lookup(ctx, userID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Lookup", reflect.TypeOf((*MockAccounts)(nil).Lookup), ctx, userID)
}

// MockCatalog is a mock of Catalog interface.
type MockCatalog struct {
	ctrl     *gomock.Controller
	recorder *MockCatalogMockRecorder
}

// MockCatalogMockRecorder is the mock recorder for MockCatalog.
type MockCatalogMockRecorder struct {
	mock *MockCatalog
}

// NewMockCatalog creates a new mock instance.
func NewMockCatalog(ctrl *gomock.Controller) *MockCatalog {
	mock := &MockCatalog{ctrl: ctrl}
	mock.recorder = &MockCatalogMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockCatalog) EXPECT() *MockCatalogMockRecorder {
	return m.recorder
}

// Exists mocks base method.
func (m *MockCatalog) Exists(ctx context.Context, bookID uuid.UUID) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Exists", ctx, bookID)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Exists indicates an expected call of Exists.
func (mr *MockCatalogMockRecorder) Exists(ctx, bookID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Exists", reflect.TypeOf((*MockCatalog)(nil).Exists), ctx, bookID)
}

// Title mocks base method.
func (m *MockCatalog) Title(ctx context.Context, bookID uuid.UUID) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Title", ctx, bookID)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Title indicates an expected call of Title.
func (mr *MockCatalogMockRecorder) Title(ctx, bookID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Title", reflect.TypeOf((*MockCatalog)(nil).Title), ctx, bookID)
}

// MockNotifier is a mock of Notifier interface.
type MockNotifier struct {
	ctrl     *gomock.Controller
	recorder *MockNotifierMockRecorder
}

// MockNotifierMockRecorder is the mock recorder for MockNotifier.
type MockNotifierMockRecorder struct {
	mock *MockNotifier
}

// NewMockNotifier creates a new mock instance.
func NewMockNotifier(ctrl *gomock.Controller) *MockNotifier {
	mock := &MockNotifier{ctrl: ctrl}
	mock.recorder = &MockNotifierMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockNotifier) EXPECT() *MockNotifierMockRecorder {
	return m.recorder
}

// NotifyBlocked mocks base method.
func (m *MockNotifier) NotifyBlocked(ctx context.Context, userID uuid.UUID, l *Loan) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NotifyBlocked", ctx, userID, l)
	ret0, _ := ret[0].(error)
	return ret0
}

// NotifyBlocked indicates an expected call of NotifyBlocked.
func (mr *MockNotifierMockRecorder) NotifyBlocked(ctx, userID, l any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NotifyBlocked", reflect.TypeOf((*MockNotifier)(nil).NotifyBlocked), ctx, userID, l)
}

// NotifyOverdue mocks base method.
func (m *MockNotifier) NotifyOverdue(ctx context.Context, l *Loan, daysOverdue int) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NotifyOverdue", ctx, l, daysOverdue)
	ret0, _ := ret[0].(error)
	return ret0
}

// NotifyOverdue indicates an expected call of NotifyOverdue.
func (mr *MockNotifierMockRecorder) NotifyOverdue(ctx, l, daysOverdue any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NotifyOverdue", reflect.TypeOf((*MockNotifier)(nil).NotifyOverdue), ctx, l, daysOverdue)
}
