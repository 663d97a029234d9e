package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/internal/domain/workflow"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// DashboardService is the read side: merged per-caller dashboards and
// visibility-checked record lookups
type DashboardService interface {
	// BuildDashboard merges the five categories visible to actor, newest
	// first, with stats. Managers also get their own rows as MyRequests.
	BuildDashboard(ctx context.Context, actor entity.Actor) (*entity.Dashboard, error)

	// GetRequest returns a request with its voucher when actor may see it
	GetRequest(ctx context.Context, actor entity.Actor, formType entity.FormType, id int64) (*Submission, error)

	// GetVoucher returns a voucher when actor may see it
	GetVoucher(ctx context.Context, actor entity.Actor, id int64) (*entity.Voucher, error)

	// ListVouchers returns the vouchers visible to actor
	ListVouchers(ctx context.Context, actor entity.Actor, filter entity.VoucherFilter) ([]*entity.Voucher, error)
}

type dashboardServiceImpl struct {
	requestRepo port.RequestRepository
	voucherRepo port.VoucherRepository
	visibility  VisibilityResolver
	logger      Logger
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(
	requestRepo port.RequestRepository,
	voucherRepo port.VoucherRepository,
	visibility VisibilityResolver,
	logger Logger,
) DashboardService {
	return &dashboardServiceImpl{
		requestRepo: requestRepo,
		voucherRepo: voucherRepo,
		visibility:  visibility,
		logger:      logger,
	}
}

func (s *dashboardServiceImpl) BuildDashboard(ctx context.Context, actor entity.Actor) (*entity.Dashboard, error) {
	scope, err := s.visibility.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	n := len(entity.FormTypes)
	visible := make([][]*entity.Request, n)
	own := make([][]*entity.Request, n)
	var vouchers []*entity.Voucher

	g, gctx := errgroup.WithContext(ctx)
	for i, ft := range entity.FormTypes {
		g.Go(func() error {
			rows, err := s.requestRepo.List(gctx, ft, scope)
			if err != nil {
				return fmt.Errorf("list %s: %w", ft, err)
			}
			visible[i] = rows
			return nil
		})
		if actor.IsManager() {
			g.Go(func() error {
				rows, err := s.requestRepo.List(gctx, ft, entity.OwnersScope(actor.ID))
				if err != nil {
					return fmt.Errorf("list own %s: %w", ft, err)
				}
				own[i] = rows
				return nil
			})
		}
	}
	g.Go(func() error {
		rows, err := s.voucherRepo.List(gctx, scope, entity.VoucherFilter{})
		if err != nil {
			return fmt.Errorf("list vouchers: %w", err)
		}
		vouchers = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to build dashboard", "error", err, "actor_id", actor.ID, "role", actor.Role)
		return nil, apperr.Internal(err, "build dashboard")
	}

	requests := mergeRows(visible)
	annotateRows(actor, scope, requests)
	annotateVouchers(actor, scope, vouchers...)
	dashboard := &entity.Dashboard{
		Stats:    ComputeStats(requests),
		Requests: requests,
		Vouchers: vouchers,
	}
	if dashboard.Vouchers == nil {
		dashboard.Vouchers = []*entity.Voucher{}
	}
	if actor.IsManager() {
		dashboard.MyRequests = mergeRows(own)
		annotateRows(actor, scope, dashboard.MyRequests)
	}

	s.logger.Info("Dashboard built",
		"actor_id", actor.ID,
		"role", actor.Role,
		"requests", len(dashboard.Requests),
		"vouchers", len(dashboard.Vouchers),
	)
	return dashboard, nil
}

func (s *dashboardServiceImpl) GetRequest(ctx context.Context, actor entity.Actor, formType entity.FormType, id int64) (*Submission, error) {
	if !formType.IsValid() {
		return nil, classify(&entity.ErrUnknownFormType{FormType: string(formType)}, "get request")
	}

	req, err := s.requestRepo.GetByID(ctx, formType, id)
	if err != nil {
		return nil, apperr.Internal(err, "get request")
	}
	if req == nil {
		return nil, apperr.NotFound("%s request %d not found", formType, id)
	}
	scope, err := s.ensureVisible(ctx, actor, req.UserID)
	if err != nil {
		return nil, err
	}

	voucher, err := s.voucherRepo.GetByRequest(ctx, formType, id)
	if err != nil {
		return nil, apperr.Internal(err, "get voucher for request")
	}
	annotateVouchers(actor, scope, voucher)
	return &Submission{Request: req, Voucher: voucher}, nil
}

func (s *dashboardServiceImpl) GetVoucher(ctx context.Context, actor entity.Actor, id int64) (*entity.Voucher, error) {
	voucher, err := s.voucherRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err, "get voucher")
	}
	if voucher == nil {
		return nil, apperr.NotFound("voucher %d not found", id)
	}
	scope, err := s.ensureVisible(ctx, actor, voucher.EmployeeID)
	if err != nil {
		return nil, err
	}
	annotateVouchers(actor, scope, voucher)
	return voucher, nil
}

func (s *dashboardServiceImpl) ListVouchers(ctx context.Context, actor entity.Actor, filter entity.VoucherFilter) ([]*entity.Voucher, error) {
	scope, err := s.visibility.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if filter.FormType != "" && !filter.FormType.IsValid() {
		return nil, classify(&entity.ErrUnknownFormType{FormType: string(filter.FormType)}, "list vouchers")
	}

	vouchers, err := s.voucherRepo.List(ctx, scope, filter)
	if err != nil {
		return nil, apperr.Internal(err, "list vouchers")
	}
	annotateVouchers(actor, scope, vouchers...)
	return vouchers, nil
}

// ensureVisible checks actor may read a row of ownerID and returns the
// actor's scope for working out which actions apply
func (s *dashboardServiceImpl) ensureVisible(ctx context.Context, actor entity.Actor, ownerID int64) (entity.Scope, error) {
	ok, err := s.visibility.CanView(ctx, actor, ownerID)
	if err != nil {
		return entity.Scope{}, err
	}
	if !ok {
		return entity.Scope{}, apperr.Forbidden("record is outside your visibility")
	}
	return s.visibility.ResolveScope(ctx, actor)
}

// formFallbacks are payload keys consulted when a column is blank.
// Older clients wrote the amount under several names.
type formFallbacks struct {
	EmployeeName  string         `json:"employeeName"`
	Amount        *entity.Amount `json:"amount"`
	TotalAmount   *entity.Amount `json:"totalAmount"`
	TotalExpenses *entity.Amount `json:"totalExpenses"`
	GrandTotal    *entity.Amount `json:"grandTotal"`
	SubmittedAt   string         `json:"submittedAt"`
}

// NormalizeRow projects a category request onto the dashboard row shape
func NormalizeRow(req *entity.Request) entity.DashboardRow {
	var fb formFallbacks
	if len(req.FormData) > 0 {
		_ = json.Unmarshal(req.FormData, &fb)
	}

	row := entity.DashboardRow{
		ID:           req.ID,
		FormType:     req.FormType,
		UserID:       req.UserID,
		EmployeeName: firstNonEmpty(req.OwnerName, req.EmployeeName, fb.EmployeeName, entity.UnknownEmployeeName),
		Amount:       entity.Finite(req.Amount),
		Status:       strings.TrimSpace(req.Status),
		Version:      req.Version,
	}

	if row.Amount == 0 {
		for _, a := range []*entity.Amount{fb.Amount, fb.TotalAmount, fb.TotalExpenses, fb.GrandTotal} {
			if a != nil {
				row.Amount = entity.Finite(a.Float64())
				break
			}
		}
	}
	if row.Status == "" {
		row.Status = entity.RequestStatusPending
	}

	if !req.CreatedAt.IsZero() {
		created := req.CreatedAt
		row.CreatedAt = &created
	} else if t, err := time.Parse(time.RFC3339, strings.TrimSpace(fb.SubmittedAt)); err == nil {
		row.CreatedAt = &t
	}
	return row
}

// mergeRows normalises every category's rows into one list sorted by
// createdAt descending. Undated rows sort last.
func mergeRows(groups [][]*entity.Request) []entity.DashboardRow {
	rows := []entity.DashboardRow{}
	for _, group := range groups {
		for _, req := range group {
			rows = append(rows, NormalizeRow(req))
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return createdUnix(rows[i]) > createdUnix(rows[j])
	})
	return rows
}

func createdUnix(row entity.DashboardRow) int64 {
	if row.CreatedAt == nil {
		return 0
	}
	return row.CreatedAt.UnixNano()
}

// ComputeStats buckets rows by their status category and sums amounts exactly
func ComputeStats(rows []entity.DashboardRow) entity.DashboardStats {
	type acc struct {
		count int
		sum   decimal.Decimal
	}
	var total acc
	buckets := map[workflow.Category]*acc{
		workflow.CategoryPending:   {},
		workflow.CategoryApproved:  {},
		workflow.CategoryRejected:  {},
		workflow.CategoryCompleted: {},
	}
	byStatus := map[string]*acc{}
	byFormType := map[entity.FormType]*acc{}

	add := func(a *acc, amount decimal.Decimal) {
		a.count++
		a.sum = a.sum.Add(amount)
	}

	for _, row := range rows {
		// rows stored before amounts were clamped may hold Inf
		amount := decimal.NewFromFloat(entity.Finite(row.Amount))
		add(&total, amount)
		add(buckets[workflow.Classify(row.Status)], amount)

		if byStatus[row.Status] == nil {
			byStatus[row.Status] = &acc{}
		}
		add(byStatus[row.Status], amount)

		if byFormType[row.FormType] == nil {
			byFormType[row.FormType] = &acc{}
		}
		add(byFormType[row.FormType], amount)
	}

	out := func(a *acc) entity.BucketStats {
		return entity.BucketStats{Count: a.count, Amount: a.sum.Round(2).InexactFloat64()}
	}

	stats := entity.DashboardStats{
		Total:      out(&total),
		Pending:    out(buckets[workflow.CategoryPending]),
		Approved:   out(buckets[workflow.CategoryApproved]),
		Rejected:   out(buckets[workflow.CategoryRejected]),
		Completed:  out(buckets[workflow.CategoryCompleted]),
		ByStatus:   make(map[string]entity.BucketStats, len(byStatus)),
		ByFormType: make(map[entity.FormType]entity.BucketStats, len(byFormType)),
	}
	for k, a := range byStatus {
		stats.ByStatus[k] = out(a)
	}
	for k, a := range byFormType {
		stats.ByFormType[k] = out(a)
	}
	return stats
}
