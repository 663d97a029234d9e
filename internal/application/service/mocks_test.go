package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
)

// Mock repositories. Each keeps rows in memory unless a func field overrides the call.

type mockUserRepo struct {
	users map[int64]*entity.User

	listByManagerFunc func(ctx context.Context, managerID int64) ([]*entity.User, error)
}

func newMockUserRepo(users ...*entity.User) *mockUserRepo {
	m := &mockUserRepo{users: map[int64]*entity.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Create(ctx context.Context, user *entity.User) error {
	user.ID = int64(len(m.users) + 1)
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) ListByManager(ctx context.Context, managerID int64) ([]*entity.User, error) {
	if m.listByManagerFunc != nil {
		return m.listByManagerFunc(ctx, managerID)
	}
	var team []*entity.User
	for _, u := range m.users {
		if u.ManagerID != nil && *u.ManagerID == managerID {
			team = append(team, u)
		}
	}
	return team, nil
}

type requestKey struct {
	formType entity.FormType
	id       int64
}

type mockRequestRepo struct {
	mu     sync.Mutex
	rows   map[requestKey]*entity.Request
	nextID int64

	createFunc      func(ctx context.Context, req *entity.Request) error
	listFunc        func(ctx context.Context, formType entity.FormType, scope entity.Scope) ([]*entity.Request, error)
	updateStateFunc func(ctx context.Context, req *entity.Request) error
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{rows: map[requestKey]*entity.Request{}}
}

func (m *mockRequestRepo) put(req *entity.Request) *entity.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID == 0 {
		m.nextID++
		req.ID = m.nextID
	}
	if req.Version == 0 {
		req.Version = 1
	}
	m.rows[requestKey{req.FormType, req.ID}] = req
	return req
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.Request) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	req.CreatedAt = time.Now()
	m.put(req)
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, formType entity.FormType, id int64) (*entity.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[requestKey{formType, id}]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *mockRequestRepo) List(ctx context.Context, formType entity.FormType, scope entity.Scope) ([]*entity.Request, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, formType, scope)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.Request{}
	for k, row := range m.rows {
		if k.formType == formType && scope.Allows(row.UserID) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRequestRepo) UpdateState(ctx context.Context, req *entity.Request) error {
	if m.updateStateFunc != nil {
		return m.updateStateFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.rows[requestKey{req.FormType, req.ID}]
	if stored == nil || stored.Version != req.Version {
		return port.ErrStaleVersion
	}
	req.Version++
	cp := *req
	m.rows[requestKey{req.FormType, req.ID}] = &cp
	return nil
}

type mockVoucherRepo struct {
	mu     sync.Mutex
	rows   map[int64]*entity.Voucher
	seq    map[string]int
	nextID int64

	createFunc func(ctx context.Context, voucher *entity.Voucher) error
	listFunc   func(ctx context.Context, scope entity.Scope, filter entity.VoucherFilter) ([]*entity.Voucher, error)
}

func newMockVoucherRepo() *mockVoucherRepo {
	return &mockVoucherRepo{rows: map[int64]*entity.Voucher{}, seq: map[string]int{}}
}

func (m *mockVoucherRepo) put(v *entity.Voucher) *entity.Voucher {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == 0 {
		m.nextID++
		v.ID = m.nextID
	}
	if v.Version == 0 {
		v.Version = 1
	}
	m.rows[v.ID] = v
	return v
}

func (m *mockVoucherRepo) Create(ctx context.Context, voucher *entity.Voucher) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, voucher)
	}
	m.put(voucher)
	return nil
}

func (m *mockVoucherRepo) GetByID(ctx context.Context, id int64) (*entity.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *mockVoucherRepo) GetByRequest(ctx context.Context, formType entity.FormType, requestID int64) (*entity.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.FormType == formType && row.RequestID == requestID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockVoucherRepo) List(ctx context.Context, scope entity.Scope, filter entity.VoucherFilter) ([]*entity.Voucher, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, scope, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.Voucher{}
	for _, row := range m.rows {
		if !scope.Allows(row.EmployeeID) {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockVoucherRepo) UpdateState(ctx context.Context, voucher *entity.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.rows[voucher.ID]
	if stored == nil || stored.Version != voucher.Version {
		return port.ErrStaleVersion
	}
	voucher.Version++
	cp := *voucher
	m.rows[voucher.ID] = &cp
	return nil
}

func (m *mockVoucherRepo) NextSequence(ctx context.Context, period string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[period]++
	return m.seq[period], nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockStorage struct {
	files map[string][]byte

	saveFunc func(ctx context.Context, path string, content []byte) error
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: map[string][]byte{}}
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, path, content)
	}
	m.files[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	return m.files[path], nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	delete(m.files, path)
	return nil
}

type mockTokens struct {
	issueFunc func(actor entity.Actor) (string, time.Time, error)
	parseFunc func(token string) (*entity.Actor, error)
}

func (m *mockTokens) Issue(actor entity.Actor) (string, time.Time, error) {
	if m.issueFunc != nil {
		return m.issueFunc(actor)
	}
	return "token-for-" + actor.Email, time.Now().Add(time.Hour), nil
}

func (m *mockTokens) Parse(token string) (*entity.Actor, error) {
	if m.parseFunc != nil {
		return m.parseFunc(token)
	}
	return nil, errors.New("invalid token")
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, content []byte, mimeType string) (*port.ExtractedBill, error)
}

func (m *mockExtractor) ExtractBill(ctx context.Context, content []byte, mimeType string) (*port.ExtractedBill, error) {
	return m.extractFunc(ctx, content, mimeType)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// test hierarchy: manager 10 leads employees 11 and 12; employee 21 reports to manager 20
var (
	mgrID  = int64(10)
	mgr2ID = int64(20)

	adminUser = &entity.User{ID: 1, Name: "Root", Email: "root@example.com", Role: entity.RoleAdmin}
	manager   = &entity.User{ID: mgrID, Name: "Maya", Email: "maya@example.com", Role: entity.RoleManager}
	manager2  = &entity.User{ID: mgr2ID, Name: "Omar", Email: "omar@example.com", Role: entity.RoleManager}
	employee1 = &entity.User{ID: 11, Name: "John", Email: "john@example.com", Role: entity.RoleEmployee, ManagerID: &mgrID}
	employee2 = &entity.User{ID: 12, Name: "Jane", Email: "jane@example.com", Role: entity.RoleEmployee, ManagerID: &mgrID}
	outsider  = &entity.User{ID: 21, Name: "Ola", Email: "ola@example.com", Role: entity.RoleEmployee, ManagerID: &mgr2ID}
)

func testUsers() *mockUserRepo {
	return newMockUserRepo(adminUser, manager, manager2, employee1, employee2, outsider)
}

func int64Ptr(v int64) *int64 { return &v }
