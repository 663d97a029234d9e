package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-portal/internal/application/service"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Services are the application services the HTTP layer drives
type Services struct {
	Auth       service.AuthService
	Submission service.SubmissionService
	Approval   service.ApprovalService
	Dashboard  service.DashboardService
	Export     service.TransactionExporter
	Proofs     service.ProofService
	OCR        service.OCRService
}

// HealthChecker reports whether a backing component is reachable
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	health   HealthChecker
	metrics  Observer
	logger   Logger
	now      func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health HealthChecker, metrics Observer, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		health:   health,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ActionRequest is the body of manager and admin actions
type ActionRequest struct {
	Action          string `json:"action"`
	Reason          string `json:"reason"`
	Remarks         string `json:"remarks"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// CompleteRequest is the body of POST /api/vouchers/:id/complete.
// TransactionDate accepts RFC3339 or YYYY-MM-DD.
type CompleteRequest struct {
	TransactionDate string `json:"transactionDate"`
	Remarks         string `json:"remarks"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// ListVouchersRequest represents query parameters for listing vouchers
type ListVouchersRequest struct {
	Status   string `form:"status"`
	FormType string `form:"formType"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Database:  "ok",
	}
	status := http.StatusOK

	if h.health != nil {
		if err := h.health.PingContext(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			resp.Status = "unhealthy"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// Login handles POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bodyError(err, apperr.Validation("invalid request body")))
		return
	}

	result, err := h.services.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// Me handles GET /api/auth/me
func (h *Handlers) Me(c *gin.Context) {
	actor, _ := actorFrom(c)
	respondOK(c, http.StatusOK, actor)
}

// Dashboard handles GET /api/dashboard
func (h *Handlers) Dashboard(c *gin.Context) {
	actor, _ := actorFrom(c)
	dashboard, err := h.services.Dashboard.BuildDashboard(c.Request.Context(), actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, dashboard)
}

// Submit handles POST /api/requests/:formType. The body is the category payload.
func (h *Handlers) Submit(c *gin.Context) {
	actor, _ := actorFrom(c)

	invalid := apperr.Validation("request body must be a JSON object")
	body, err := c.GetRawData()
	if err != nil {
		h.respondError(c, bodyError(err, invalid))
		return
	}
	if !json.Valid(body) {
		h.respondError(c, invalid)
		return
	}

	submission, err := h.services.Submission.Submit(c.Request.Context(), actor, entity.FormType(c.Param("formType")), body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, submission)
}

// GetRequest handles GET /api/requests/:formType/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	submission, err := h.services.Dashboard.GetRequest(c.Request.Context(), actor, entity.FormType(c.Param("formType")), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, submission)
}

// ManagerRequestAction handles POST /api/requests/:formType/:id/manager-action
func (h *Handlers) ManagerRequestAction(c *gin.Context) {
	h.requestAction(c, h.services.Approval.ManagerActOnRequest)
}

// AdminRequestAction handles POST /api/requests/:formType/:id/admin-action
func (h *Handlers) AdminRequestAction(c *gin.Context) {
	h.requestAction(c, h.services.Approval.AdminActOnRequest)
}

type requestActionFunc func(ctx context.Context, actor entity.Actor, formType entity.FormType, id int64, in service.ActionInput) (*service.ActionResult, error)

func (h *Handlers) requestAction(c *gin.Context, act requestActionFunc) {
	actor, _ := actorFrom(c)
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	in, ok := h.bindAction(c)
	if !ok {
		return
	}

	result, err := act(c.Request.Context(), actor, entity.FormType(c.Param("formType")), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ListVouchers handles GET /api/vouchers
func (h *Handlers) ListVouchers(c *gin.Context) {
	actor, _ := actorFrom(c)

	var req ListVouchersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid query parameters"))
		return
	}
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	vouchers, err := h.services.Dashboard.ListVouchers(c.Request.Context(), actor, entity.VoucherFilter{
		Status:   req.Status,
		FormType: entity.FormType(req.FormType),
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if vouchers == nil {
		vouchers = []*entity.Voucher{}
	}
	respondOK(c, http.StatusOK, vouchers)
}

// GetVoucher handles GET /api/vouchers/:id
func (h *Handlers) GetVoucher(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	voucher, err := h.services.Dashboard.GetVoucher(c.Request.Context(), actor, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, voucher)
}

// ManagerVoucherAction handles POST /api/vouchers/:id/manager-action
func (h *Handlers) ManagerVoucherAction(c *gin.Context) {
	h.voucherAction(c, h.services.Approval.ManagerActOnVoucher)
}

// AdminVoucherAction handles POST /api/vouchers/:id/admin-action
func (h *Handlers) AdminVoucherAction(c *gin.Context) {
	h.voucherAction(c, h.services.Approval.AdminActOnVoucher)
}

type voucherActionFunc func(ctx context.Context, actor entity.Actor, id int64, in service.ActionInput) (*service.ActionResult, error)

func (h *Handlers) voucherAction(c *gin.Context, act voucherActionFunc) {
	actor, _ := actorFrom(c)
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	in, ok := h.bindAction(c)
	if !ok {
		return
	}

	result, err := act(c.Request.Context(), actor, id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// CompleteVoucher handles POST /api/vouchers/:id/complete
func (h *Handlers) CompleteVoucher(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req CompleteRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}

	in := service.CompleteInput{Remarks: req.Remarks, ExpectedVersion: req.ExpectedVersion}
	if req.TransactionDate != "" {
		date, err := parseDate(req.TransactionDate)
		if err != nil {
			h.respondError(c, apperr.Validation("transactionDate must be RFC3339 or YYYY-MM-DD"))
			return
		}
		in.TransactionDate = &date
	}

	voucher, err := h.services.Approval.MarkCompleted(c.Request.Context(), actor, id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, voucher)
}

// UploadProof handles POST /api/proofs (multipart field "file")
func (h *Handlers) UploadProof(c *gin.Context) {
	actor, _ := actorFrom(c)
	filename, content, ok := h.readUpload(c)
	if !ok {
		return
	}

	path, err := h.services.Proofs.Upload(c.Request.Context(), actor, filename, content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"path": path})
}

// ReadProof handles GET /api/proofs/*path
func (h *Handlers) ReadProof(c *gin.Context) {
	actor, _ := actorFrom(c)
	proofPath := service.ProofDir + "/" + strings.TrimPrefix(c.Param("path"), "/")

	content, mimeType, err := h.services.Proofs.Read(c.Request.Context(), actor, proofPath)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, mimeType, content)
}

// ExtractBill handles POST /api/ocr/extract (multipart field "file")
func (h *Handlers) ExtractBill(c *gin.Context) {
	actor, _ := actorFrom(c)
	filename, content, ok := h.readUpload(c)
	if !ok {
		return
	}

	bill, err := h.services.OCR.Extract(c.Request.Context(), actor, filename, content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, bill)
}

// ExportTransactions handles GET /api/admin/transactions/export
func (h *Handlers) ExportTransactions(c *gin.Context) {
	actor, _ := actorFrom(c)

	var buf bytes.Buffer
	rows, err := h.services.Export.Export(c.Request.Context(), actor, &buf)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.ObserveExport(rows)

	filename := service.ExportFilename(h.now())
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, apperr.Validation("invalid id %q", idStr))
		return 0, false
	}
	return id, true
}

func (h *Handlers) bindAction(c *gin.Context) (service.ActionInput, bool) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bodyError(err, apperr.Validation("invalid request body")))
		return service.ActionInput{}, false
	}
	return service.ActionInput{
		Action:          req.Action,
		Reason:          req.Reason,
		Remarks:         req.Remarks,
		ExpectedVersion: req.ExpectedVersion,
	}, true
}

func (h *Handlers) readUpload(c *gin.Context) (string, []byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		h.respondError(c, bodyError(err, apperr.Validation("multipart field \"file\" is required")))
		return "", nil, false
	}

	f, err := header.Open()
	if err != nil {
		h.respondError(c, apperr.Internal(err, "open upload"))
		return "", nil, false
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		h.respondError(c, apperr.Internal(err, "read upload"))
		return "", nil, false
	}
	return header.Filename, content, true
}

// bindOptionalJSON accepts an empty body
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
