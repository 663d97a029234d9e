package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/application/service"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeObserver struct {
	routes []string
	rows   int
}

func (o *fakeObserver) ObserveHTTP(method, route string, _ int, _ time.Duration) {
	o.routes = append(o.routes, method+" "+route)
}
func (o *fakeObserver) ObserveExport(rows int) { o.rows += rows }
func (o *fakeObserver) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
}

type fakeAuth struct {
	actors map[string]entity.Actor
	login  func(email, password string) (*service.LoginResult, error)
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*service.LoginResult, error) {
	return f.login(email, password)
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*entity.Actor, error) {
	a, ok := f.actors[token]
	if !ok {
		return nil, apperr.Unauthorized("invalid bearer token")
	}
	return &a, nil
}

type fakeSubmission struct {
	submit func(actor entity.Actor, formType entity.FormType, data json.RawMessage) (*service.Submission, error)
}

func (f *fakeSubmission) Submit(_ context.Context, actor entity.Actor, formType entity.FormType, data json.RawMessage) (*service.Submission, error) {
	return f.submit(actor, formType, data)
}

type fakeApproval struct {
	lastIn     service.ActionInput
	lastTarget string
	complete   func(in service.CompleteInput) (*entity.Voucher, error)
	err        error
}

func (f *fakeApproval) ManagerActOnRequest(_ context.Context, _ entity.Actor, formType entity.FormType, id int64, in service.ActionInput) (*service.ActionResult, error) {
	f.lastIn, f.lastTarget = in, "manager:"+string(formType)
	return &service.ActionResult{Request: &entity.Request{ID: id, FormType: formType}}, f.err
}

func (f *fakeApproval) AdminActOnRequest(_ context.Context, _ entity.Actor, formType entity.FormType, id int64, in service.ActionInput) (*service.ActionResult, error) {
	f.lastIn, f.lastTarget = in, "admin:"+string(formType)
	return &service.ActionResult{Request: &entity.Request{ID: id, FormType: formType}}, f.err
}

func (f *fakeApproval) ManagerActOnVoucher(_ context.Context, _ entity.Actor, id int64, in service.ActionInput) (*service.ActionResult, error) {
	f.lastIn, f.lastTarget = in, "manager:voucher"
	return &service.ActionResult{Voucher: &entity.Voucher{ID: id}}, f.err
}

func (f *fakeApproval) AdminActOnVoucher(_ context.Context, _ entity.Actor, id int64, in service.ActionInput) (*service.ActionResult, error) {
	f.lastIn, f.lastTarget = in, "admin:voucher"
	return &service.ActionResult{Voucher: &entity.Voucher{ID: id}}, f.err
}

func (f *fakeApproval) MarkCompleted(_ context.Context, _ entity.Actor, _ int64, in service.CompleteInput) (*entity.Voucher, error) {
	return f.complete(in)
}

type fakeDashboard struct {
	service.DashboardService
	build func(actor entity.Actor) (*entity.Dashboard, error)
	list  func(filter entity.VoucherFilter) ([]*entity.Voucher, error)
}

func (f *fakeDashboard) BuildDashboard(_ context.Context, actor entity.Actor) (*entity.Dashboard, error) {
	return f.build(actor)
}

func (f *fakeDashboard) ListVouchers(_ context.Context, _ entity.Actor, filter entity.VoucherFilter) ([]*entity.Voucher, error) {
	return f.list(filter)
}

type fakeExport struct{ rows int }

func (f *fakeExport) Export(_ context.Context, actor entity.Actor, w io.Writer) (int, error) {
	if !actor.IsAdmin() {
		return 0, apperr.Forbidden("admin only")
	}
	_, err := w.Write([]byte("PK-xlsx"))
	return f.rows, err
}

type fakeProofs struct {
	uploaded map[string][]byte
}

func (f *fakeProofs) Upload(_ context.Context, actor entity.Actor, filename string, content []byte) (string, error) {
	path := "proofs/11/abc-" + filename
	f.uploaded[path] = content
	return path, nil
}

func (f *fakeProofs) Read(_ context.Context, _ entity.Actor, proofPath string) ([]byte, string, error) {
	content, ok := f.uploaded[proofPath]
	if !ok {
		return nil, "", apperr.NotFound("proof not found")
	}
	return content, "image/png", nil
}

type fakeOCR struct{}

func (fakeOCR) Extract(_ context.Context, _ entity.Actor, _ string, _ []byte) (*port.ExtractedBill, error) {
	return nil, apperr.Wrap(apperr.KindUnavailable, service.ErrOCRDisabled, "ocr not configured")
}

type failingDB struct{ err error }

func (d failingDB) PingContext(context.Context) error { return d.err }

type testEnv struct {
	server   *Server
	approval *fakeApproval
	dash     *fakeDashboard
	observer *fakeObserver
}

var (
	testAdmin    = entity.Actor{ID: 1, Name: "Admin", Role: entity.RoleAdmin}
	testManager  = entity.Actor{ID: 10, Name: "Maya", Role: entity.RoleManager}
	testEmployee = entity.Actor{ID: 11, Name: "John", Role: entity.RoleEmployee}
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, DefaultServerConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		approval: &fakeApproval{},
		dash:     &fakeDashboard{},
		observer: &fakeObserver{},
	}
	services := Services{
		Auth: &fakeAuth{
			actors: map[string]entity.Actor{"admin": testAdmin, "manager": testManager, "employee": testEmployee},
			login: func(email, password string) (*service.LoginResult, error) {
				if password != "secret" {
					return nil, apperr.Unauthorized("invalid email or password")
				}
				return &service.LoginResult{Token: "tok", User: &entity.User{ID: 11, Email: email}}, nil
			},
		},
		Submission: &fakeSubmission{submit: func(actor entity.Actor, formType entity.FormType, data json.RawMessage) (*service.Submission, error) {
			if formType == "bogus" {
				return nil, apperr.Validation("invalid submission")
			}
			return &service.Submission{
				Request: &entity.Request{ID: 5, FormType: formType, UserID: actor.ID, Status: "pending"},
				Voucher: &entity.Voucher{ID: 9, VoucherNo: "VCH2024030001"},
			}, nil
		}},
		Approval:  env.approval,
		Dashboard: env.dash,
		Export:    &fakeExport{rows: 3},
		Proofs:    &fakeProofs{uploaded: map[string][]byte{}},
		OCR:       fakeOCR{},
	}
	env.server = NewServer(cfg, services, nil, env.observer, nopLogger{})
	return env
}

func (e *testEnv) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return e.do(method, path, token, r, "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doJSON(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	env.server.handlers.health = failingDB{err: errors.New("db down")}
	rec = env.doJSON(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doJSON(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
	assert.Contains(t, env.observer.routes, "GET /metrics")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodPost, "/api/auth/login", "", `{"email":"john@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)

	rec = env.doJSON(http.MethodPost, "/api/auth/login", "", `{"email":"john@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decode(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, apperr.KindUnauthorized, resp.Kind)

	rec = env.doJSON(http.MethodPost, "/api/auth/login", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodGet, "/api/dashboard", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperr.KindUnauthorized, decode(t, rec).Kind)

	rec = env.doJSON(http.MethodGet, "/api/dashboard", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSON(http.MethodGet, "/api/auth/me", "employee", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.dash.build = func(actor entity.Actor) (*entity.Dashboard, error) {
		return &entity.Dashboard{Stats: entity.DashboardStats{Total: 2}}, nil
	}

	rec := env.doJSON(http.MethodGet, "/api/dashboard", "manager", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)

	env.dash.build = func(entity.Actor) (*entity.Dashboard, error) {
		return nil, apperr.Internal(errors.New("sql: connection refused"), "list requests")
	}
	rec = env.doJSON(http.MethodGet, "/api/dashboard", "manager", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, apperr.KindInternal, resp.Kind)
	assert.NotContains(t, resp.Error, "connection refused")
}

func TestSubmit(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodPost, "/api/requests/reimbursement", "employee", `{"employeeName":"John","purpose":"taxi","amount":"42"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "VCH2024030001")

	rec = env.doJSON(http.MethodPost, "/api/requests/bogus", "employee", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.KindValidation, decode(t, rec).Kind)

	rec = env.doJSON(http.MethodPost, "/api/requests/reimbursement", "employee", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActions_RoleGates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodPost, "/api/requests/cash_payment/3/manager-action", "employee", `{"action":"approve"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.KindForbidden, decode(t, rec).Kind)

	rec = env.doJSON(http.MethodPost, "/api/vouchers/3/admin-action", "manager", `{"action":"approve"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSON(http.MethodPost, "/api/admin/transactions/export", "manager", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.doJSON(http.MethodGet, "/api/admin/transactions/export", "manager", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestActions_PassThroughInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodPost, "/api/requests/local_travel/7/manager-action", "manager",
		`{"action":"reject","reason":"duplicate","expectedVersion":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manager:local_travel", env.approval.lastTarget)
	assert.Equal(t, "reject", env.approval.lastIn.Action)
	assert.Equal(t, "duplicate", env.approval.lastIn.Reason)
	require.NotNil(t, env.approval.lastIn.ExpectedVersion)
	assert.Equal(t, int64(2), *env.approval.lastIn.ExpectedVersion)

	rec = env.doJSON(http.MethodPost, "/api/vouchers/7/admin-action", "admin", `{"action":"approve","remarks":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin:voucher", env.approval.lastTarget)
	assert.Nil(t, env.approval.lastIn.ExpectedVersion)

	rec = env.doJSON(http.MethodPost, "/api/vouchers/abc/admin-action", "admin", `{"action":"approve"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.approval.err = apperr.Conflict("record was modified concurrently")
	rec = env.doJSON(http.MethodPost, "/api/requests/local_travel/7/admin-action", "admin", `{"action":"approve"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, apperr.KindConflict, resp.Kind)
	assert.Equal(t, "record was modified concurrently", resp.Error)
}

func TestCompleteVoucher(t *testing.T) {
	env := newTestEnv(t)
	var got service.CompleteInput
	env.approval.complete = func(in service.CompleteInput) (*entity.Voucher, error) {
		got = in
		return &entity.Voucher{ID: 4, Status: entity.VoucherStatusCompleted}, nil
	}

	rec := env.doJSON(http.MethodPost, "/api/vouchers/4/complete", "admin", `{"transactionDate":"2024-03-15","remarks":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.TransactionDate)
	assert.Equal(t, "2024-03-15", got.TransactionDate.Format("2006-01-02"))
	assert.Equal(t, "paid", got.Remarks)

	got = service.CompleteInput{}
	rec = env.do(http.MethodPost, "/api/vouchers/4/complete", "admin", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, got.TransactionDate)

	rec = env.doJSON(http.MethodPost, "/api/vouchers/4/complete", "admin", `{"transactionDate":"15/03/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListVouchers_Filter(t *testing.T) {
	env := newTestEnv(t)
	var got entity.VoucherFilter
	env.dash.list = func(filter entity.VoucherFilter) ([]*entity.Voucher, error) {
		got = filter
		return nil, nil
	}

	rec := env.doJSON(http.MethodGet, "/api/vouchers?status=approved&formType=vendor_payment&limit=5000", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", got.Status)
	assert.Equal(t, entity.FormTypeVendorPayment, got.FormType)
	assert.Equal(t, 100, got.Limit)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestProofs_UploadAndRead(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "bill.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png-bytes"))
	require.NoError(t, mw.Close())

	rec := env.do(http.MethodPost, "/api/proofs", "employee", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Data struct {
			Path string `json:"path"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "proofs/11/abc-bill.png", resp.Data.Path)

	rec = env.doJSON(http.MethodGet, "/api/"+resp.Data.Path, "employee", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = env.doJSON(http.MethodGet, "/api/proofs/11/missing.png", "employee", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.doJSON(http.MethodPost, "/api/proofs", "employee", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractBill_Disabled(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "bill.jpg")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("jpg"))
	require.NoError(t, mw.Close())

	rec := env.do(http.MethodPost, "/api/ocr/extract", "employee", &body, mw.FormDataContentType())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, apperr.KindUnavailable, resp.Kind)
	assert.Equal(t, "ocr not configured", resp.Error)
}

func multipartFile(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

// chunked hides the length so only the body reader cap can stop the request
type chunked struct{ io.Reader }

func TestBodyLimit_Uploads(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxUploadBytes = 1 << 10
	env := newTestEnvWithConfig(t, cfg)

	body, contentType := multipartFile(t, "bill.png", bytes.Repeat([]byte("x"), 1<<10))
	rec := env.do(http.MethodPost, "/api/proofs", "employee", body, contentType)
	assert.Equal(t, http.StatusCreated, rec.Code, "a file at the limit still fits")

	body, contentType = multipartFile(t, "bill.png", bytes.Repeat([]byte("x"), 200<<10))
	rec = env.do(http.MethodPost, "/api/proofs", "employee", body, contentType)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apperr.KindTooLarge, decode(t, rec).Kind)

	body, contentType = multipartFile(t, "bill.jpg", bytes.Repeat([]byte("x"), 200<<10))
	rec = env.do(http.MethodPost, "/api/ocr/extract", "employee", body, contentType)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBodyLimit_JSON(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 256
	env := newTestEnvWithConfig(t, cfg)

	big := `{"employeeName":"John","voucherNo":"CP-1","purpose":"` + strings.Repeat("a", 512) + `"}`
	rec := env.doJSON(http.MethodPost, "/api/requests/cash_payment", "employee", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = env.do(http.MethodPost, "/api/requests/cash_payment", "employee", chunked{strings.NewReader(big)}, "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apperr.KindTooLarge, decode(t, rec).Kind)

	rec = env.doJSON(http.MethodPost, "/api/vouchers/9/admin-action", "admin", `{"action":"reject","reason":"`+strings.Repeat("r", 512)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = env.doJSON(http.MethodPost, "/api/requests/cash_payment", "employee", `{"employeeName":"John","voucherNo":"CP-1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestExportTransactions(t *testing.T) {
	env := newTestEnv(t)
	env.server.handlers.now = func() time.Time { return time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC) }

	rec := env.doJSON(http.MethodGet, "/api/admin/transactions/export", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "transactions-20240331-180000.xlsx")
	assert.Equal(t, "PK-xlsx", rec.Body.String())
	assert.Equal(t, 3, env.observer.rows)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(apperr.KindValidation))
	assert.Equal(t, http.StatusUnauthorized, statusFor(apperr.KindUnauthorized))
	assert.Equal(t, http.StatusForbidden, statusFor(apperr.KindForbidden))
	assert.Equal(t, http.StatusNotFound, statusFor(apperr.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(apperr.KindConflict))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(apperr.KindTooLarge))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(apperr.KindUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperr.KindInternal))
}
