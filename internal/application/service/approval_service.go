package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-portal/internal/application/dispatcher"
	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/internal/domain/event"
	"github.com/garyjia/expense-portal/internal/domain/workflow"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ActionInput is a manager or admin decision on a record
type ActionInput struct {
	Action  string
	Reason  string
	Remarks string

	// ExpectedVersion, when set, must equal the stored version of the
	// addressed record or the action fails with a conflict
	ExpectedVersion *int64
}

// CompleteInput marks an approved voucher as paid out
type CompleteInput struct {
	TransactionDate *time.Time
	Remarks         string
	ExpectedVersion *int64
}

// ActionResult is the request/voucher pair after an action.
// Either side may be nil for rows created before vouchers existed.
type ActionResult struct {
	Request *entity.Request `json:"request,omitempty"`
	Voucher *entity.Voucher `json:"voucher,omitempty"`
}

// ApprovalService applies role-gated transitions to request/voucher pairs.
// Both records of a pair move together inside one transaction.
type ApprovalService interface {
	ManagerActOnRequest(ctx context.Context, actor entity.Actor, formType entity.FormType, requestID int64, in ActionInput) (*ActionResult, error)
	ManagerActOnVoucher(ctx context.Context, actor entity.Actor, voucherID int64, in ActionInput) (*ActionResult, error)
	AdminActOnRequest(ctx context.Context, actor entity.Actor, formType entity.FormType, requestID int64, in ActionInput) (*ActionResult, error)
	AdminActOnVoucher(ctx context.Context, actor entity.Actor, voucherID int64, in ActionInput) (*ActionResult, error)
	MarkCompleted(ctx context.Context, actor entity.Actor, voucherID int64, in CompleteInput) (*entity.Voucher, error)
}

type approvalServiceImpl struct {
	requestRepo port.RequestRepository
	voucherRepo port.VoucherRepository
	txManager   port.TransactionManager
	visibility  VisibilityResolver
	events      dispatcher.Dispatcher
	logger      Logger
	now         func() time.Time
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	requestRepo port.RequestRepository,
	voucherRepo port.VoucherRepository,
	txManager port.TransactionManager,
	visibility VisibilityResolver,
	events dispatcher.Dispatcher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		requestRepo: requestRepo,
		voucherRepo: voucherRepo,
		txManager:   txManager,
		visibility:  visibility,
		events:      events,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// target names the addressed side of a pair
type target int

const (
	targetRequest target = iota
	targetVoucher
)

type stage int

const (
	stageManager stage = iota
	stageAdmin
)

// locator loads the pair inside the transaction
type locator func(ctx context.Context) (*entity.Request, *entity.Voucher, error)

func (s *approvalServiceImpl) ManagerActOnRequest(ctx context.Context, actor entity.Actor, formType entity.FormType, requestID int64, in ActionInput) (*ActionResult, error) {
	if !actor.IsManager() {
		return nil, apperr.Forbidden(msgManagerOnly)
	}
	return s.act(ctx, actor, stageManager, targetRequest, in, s.byRequest(formType, requestID))
}

func (s *approvalServiceImpl) ManagerActOnVoucher(ctx context.Context, actor entity.Actor, voucherID int64, in ActionInput) (*ActionResult, error) {
	if !actor.IsManager() {
		return nil, apperr.Forbidden(msgManagerOnly)
	}
	return s.act(ctx, actor, stageManager, targetVoucher, in, s.byVoucher(voucherID))
}

func (s *approvalServiceImpl) AdminActOnRequest(ctx context.Context, actor entity.Actor, formType entity.FormType, requestID int64, in ActionInput) (*ActionResult, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden(msgAdminOnly)
	}
	return s.act(ctx, actor, stageAdmin, targetRequest, in, s.byRequest(formType, requestID))
}

func (s *approvalServiceImpl) AdminActOnVoucher(ctx context.Context, actor entity.Actor, voucherID int64, in ActionInput) (*ActionResult, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden(msgAdminOnly)
	}
	return s.act(ctx, actor, stageAdmin, targetVoucher, in, s.byVoucher(voucherID))
}

func (s *approvalServiceImpl) byRequest(formType entity.FormType, requestID int64) locator {
	return func(ctx context.Context) (*entity.Request, *entity.Voucher, error) {
		if !formType.IsValid() {
			return nil, nil, apperr.Wrap(apperr.KindValidation, &entity.ErrUnknownFormType{FormType: string(formType)}, "invalid form type")
		}
		req, err := s.requestRepo.GetByID(ctx, formType, requestID)
		if err != nil {
			return nil, nil, fmt.Errorf("get request: %w", err)
		}
		if req == nil {
			return nil, nil, apperr.NotFound("%s request %d not found", formType, requestID)
		}
		voucher, err := s.voucherRepo.GetByRequest(ctx, formType, requestID)
		if err != nil {
			return nil, nil, fmt.Errorf("get voucher for request: %w", err)
		}
		return req, voucher, nil
	}
}

func (s *approvalServiceImpl) byVoucher(voucherID int64) locator {
	return func(ctx context.Context) (*entity.Request, *entity.Voucher, error) {
		voucher, err := s.voucherRepo.GetByID(ctx, voucherID)
		if err != nil {
			return nil, nil, fmt.Errorf("get voucher: %w", err)
		}
		if voucher == nil {
			return nil, nil, apperr.NotFound("voucher %d not found", voucherID)
		}
		req, err := s.requestRepo.GetByID(ctx, voucher.FormType, voucher.RequestID)
		if err != nil {
			return nil, nil, fmt.Errorf("get request for voucher: %w", err)
		}
		return req, voucher, nil
	}
}

func (s *approvalServiceImpl) act(ctx context.Context, actor entity.Actor, st stage, addressed target, in ActionInput, locate locator) (*ActionResult, error) {
	trigger, err := triggerFor(st, in.Action)
	if err != nil {
		return nil, err
	}

	var team []int64
	if st == stageManager {
		if team, err = s.visibility.TeamIDs(ctx, actor.ID); err != nil {
			return nil, err
		}
	}

	result := &ActionResult{}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, voucher, err := locate(txCtx)
		if err != nil {
			return err
		}

		owner := ownerOf(req, voucher)
		if st == stageManager && !entity.OwnersScope(team...).Allows(owner) {
			return apperr.Forbidden(msgNotOnTeam)
		}

		if in.ExpectedVersion != nil {
			current := voucherVersion(voucher)
			if addressed == targetRequest {
				current = requestVersion(req)
			}
			if current != *in.ExpectedVersion {
				return apperr.Wrap(apperr.KindConflict, port.ErrStaleVersion, msgStaleVersion)
			}
		}

		at := s.now()
		if req != nil {
			if err := fireRequest(req, trigger); err != nil {
				return err
			}
			applyRequestDecision(req, actor, st, trigger, in, at)
			if err := s.requestRepo.UpdateState(txCtx, req); err != nil {
				return fmt.Errorf("update request: %w", err)
			}
		}
		if voucher != nil {
			if err := fireVoucher(voucher, trigger); err != nil {
				return err
			}
			applyVoucherDecision(voucher, actor, st, trigger, in, at)
			if err := s.voucherRepo.UpdateState(txCtx, voucher); err != nil {
				return fmt.Errorf("update voucher: %w", err)
			}
		}

		result.Request = req
		result.Voucher = voucher
		return nil
	})
	if err != nil {
		s.logger.Error("Approval action failed",
			"error", err,
			"actor_id", actor.ID,
			"action", in.Action,
			"trigger", trigger.String(),
		)
		return nil, classify(err, "approval action rejected")
	}

	s.logger.Info("Approval action applied",
		"actor_id", actor.ID,
		"trigger", trigger.String(),
		"request_status", requestStatus(result.Request),
		"voucher_status", voucherStatus(result.Voucher),
	)
	s.publish(ctx, eventFor(trigger), actor, result.Request, result.Voucher, in.Reason)
	return result, nil
}

func (s *approvalServiceImpl) MarkCompleted(ctx context.Context, actor entity.Actor, voucherID int64, in CompleteInput) (*entity.Voucher, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden(msgAdminOnly)
	}

	var completed *entity.Voucher
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		voucher, err := s.voucherRepo.GetByID(txCtx, voucherID)
		if err != nil {
			return fmt.Errorf("get voucher: %w", err)
		}
		if voucher == nil {
			return apperr.NotFound("voucher %d not found", voucherID)
		}
		if in.ExpectedVersion != nil && voucher.Version != *in.ExpectedVersion {
			return apperr.Wrap(apperr.KindConflict, port.ErrStaleVersion, msgStaleVersion)
		}

		next, err := workflow.Vouchers.Next(voucher.Status, workflow.TriggerComplete)
		if err != nil {
			return apperr.Wrap(apperr.KindConflict, err, msgOnlyApproved)
		}

		at := s.now()
		txDate := at
		if in.TransactionDate != nil && !in.TransactionDate.IsZero() {
			txDate = *in.TransactionDate
		}

		voucher.Status = next.String()
		voucher.CompletedBy = &actor.ID
		voucher.CompletedAt = &at
		voucher.TransactionDate = &txDate
		if strings.TrimSpace(in.Remarks) != "" {
			voucher.Remarks = in.Remarks
		}

		if err := s.voucherRepo.UpdateState(txCtx, voucher); err != nil {
			return fmt.Errorf("update voucher: %w", err)
		}
		completed = voucher
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to mark voucher completed", "error", err, "voucher_id", voucherID, "actor_id", actor.ID)
		return nil, classify(err, msgOnlyApproved)
	}

	s.logger.Info("Voucher completed", "voucher_id", completed.ID, "voucher_no", completed.VoucherNo, "actor_id", actor.ID)
	s.publish(ctx, event.TypeVoucherCompleted, actor, nil, completed, "")
	return completed, nil
}

func (s *approvalServiceImpl) publish(ctx context.Context, eventType event.Type, actor entity.Actor, req *entity.Request, voucher *entity.Voucher, reason string) {
	if s.events == nil {
		return
	}
	s.events.DispatchAsync(ctx, buildEvent(eventType, actor, req, voucher, reason))
}

// buildEvent flattens a pair into an event payload. Either side may be nil.
func buildEvent(eventType event.Type, actor entity.Actor, req *entity.Request, voucher *entity.Voucher, reason string) *event.Event {
	payload := map[string]interface{}{
		event.KeyActorID: actor.ID,
		event.KeyReason:  reason,
	}

	var voucherID int64
	if voucher != nil {
		voucherID = voucher.ID
		payload[event.KeyVoucherNo] = voucher.VoucherNo
		payload[event.KeyFormType] = voucher.FormType.String()
		payload[event.KeyRequestID] = voucher.RequestID
		payload[event.KeyEmployeeID] = voucher.EmployeeID
		payload[event.KeyEmployeeName] = voucher.EmployeeName
		payload[event.KeyAmount] = voucher.TotalAmount
		payload[event.KeyStatus] = voucher.Status
	}
	if req != nil {
		payload[event.KeyFormType] = req.FormType.String()
		payload[event.KeyRequestID] = req.ID
		payload[event.KeyEmployeeID] = req.UserID
		payload[event.KeyEmployeeName] = req.EmployeeName
		payload[event.KeyAmount] = req.Amount
		payload[event.KeyStatus] = req.Status
	}

	return event.NewEvent(eventType, voucherID, payload)
}

func triggerFor(st stage, action string) (workflow.Trigger, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case entity.ActionApprove:
		if st == stageManager {
			return workflow.TriggerManagerApprove, nil
		}
		return workflow.TriggerAdminApprove, nil
	case entity.ActionReject:
		if st == stageManager {
			return workflow.TriggerManagerReject, nil
		}
		return workflow.TriggerAdminReject, nil
	default:
		return "", apperr.Validation(msgInvalidAction)
	}
}

func eventFor(trigger workflow.Trigger) event.Type {
	switch trigger {
	case workflow.TriggerManagerApprove:
		return event.TypeRequestManagerApproved
	case workflow.TriggerManagerReject:
		return event.TypeRequestManagerRejected
	case workflow.TriggerAdminApprove:
		return event.TypeRequestAdminApproved
	case workflow.TriggerAdminReject:
		return event.TypeRequestAdminRejected
	default:
		return event.TypeVoucherCompleted
	}
}

func fireRequest(req *entity.Request, trigger workflow.Trigger) error {
	next, err := workflow.Requests.Next(req.Status, trigger)
	if err != nil {
		return fmt.Errorf("request %d: %w", req.ID, err)
	}
	req.Status = next.String()
	return nil
}

func fireVoucher(voucher *entity.Voucher, trigger workflow.Trigger) error {
	next, err := workflow.Vouchers.Next(voucher.Status, trigger)
	if err != nil {
		return fmt.Errorf("voucher %s: %w", voucher.VoucherNo, err)
	}
	voucher.Status = next.String()
	return nil
}

func applyRequestDecision(req *entity.Request, actor entity.Actor, st stage, trigger workflow.Trigger, in ActionInput, at time.Time) {
	if trigger.IsReject() {
		req.RejectedBy = &actor.ID
		req.RejectedAt = &at
		req.RejectionReason = rejectReason(st, in.Reason)
	} else {
		req.ApprovedBy = &actor.ID
		req.ApprovedAt = &at
	}
	if remarks := remarksOf(in); remarks != "" {
		req.Remarks = remarks
	}
}

func applyVoucherDecision(voucher *entity.Voucher, actor entity.Actor, st stage, trigger workflow.Trigger, in ActionInput, at time.Time) {
	if trigger.IsReject() {
		voucher.RejectedBy = &actor.ID
		voucher.RejectedAt = &at
		voucher.RejectionReason = rejectReason(st, in.Reason)
	} else {
		voucher.ApprovedBy = &actor.ID
		voucher.ApprovedAt = &at
	}
	if remarks := remarksOf(in); remarks != "" {
		voucher.Remarks = remarks
	}
}

func rejectReason(st stage, reason string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	if st == stageManager {
		return entity.DefaultManagerRejectReason
	}
	return entity.DefaultAdminRejectReason
}

// remarksOf keeps an approval reason as the remark when no remark was given
func remarksOf(in ActionInput) string {
	if r := strings.TrimSpace(in.Remarks); r != "" {
		return r
	}
	if strings.EqualFold(strings.TrimSpace(in.Action), entity.ActionApprove) {
		return strings.TrimSpace(in.Reason)
	}
	return ""
}

func ownerOf(req *entity.Request, voucher *entity.Voucher) int64 {
	if req != nil {
		return req.UserID
	}
	return voucher.EmployeeID
}

func requestVersion(req *entity.Request) int64 {
	if req == nil {
		return 0
	}
	return req.Version
}

func voucherVersion(voucher *entity.Voucher) int64 {
	if voucher == nil {
		return 0
	}
	return voucher.Version
}

func requestStatus(req *entity.Request) string {
	if req == nil {
		return ""
	}
	return req.Status
}

func voucherStatus(voucher *entity.Voucher) string {
	if voucher == nil {
		return ""
	}
	return voucher.Status
}
