package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-portal/internal/application/dispatcher"
	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/internal/domain/event"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// Submission is a request and the voucher projected from it
type Submission struct {
	Request *entity.Request `json:"request"`
	Voucher *entity.Voucher `json:"voucher"`
}

// SubmissionService creates category requests together with their vouchers
type SubmissionService interface {
	// Submit validates the category payload and writes the request and its
	// voucher in one transaction. Both start pending.
	Submit(ctx context.Context, actor entity.Actor, formType entity.FormType, formData json.RawMessage) (*Submission, error)
}

type submissionServiceImpl struct {
	requestRepo port.RequestRepository
	voucherRepo port.VoucherRepository
	numberer    VoucherNumberer
	txManager   port.TransactionManager
	events      dispatcher.Dispatcher
	logger      Logger
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(
	requestRepo port.RequestRepository,
	voucherRepo port.VoucherRepository,
	numberer VoucherNumberer,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) SubmissionService {
	return &submissionServiceImpl{
		requestRepo: requestRepo,
		voucherRepo: voucherRepo,
		numberer:    numberer,
		txManager:   txManager,
		events:      events,
		logger:      logger,
	}
}

func (s *submissionServiceImpl) Submit(ctx context.Context, actor entity.Actor, formType entity.FormType, formData json.RawMessage) (*Submission, error) {
	if !actor.Role.IsValid() {
		return nil, apperr.Forbidden("unknown role %q", actor.Role)
	}

	form, err := entity.DecodeForm(formType, formData)
	if err != nil {
		var unknown *entity.ErrUnknownFormType
		if errors.As(err, &unknown) {
			return nil, classify(err, "submit")
		}
		return nil, apperr.Wrap(apperr.KindValidation, err, "malformed form data")
	}
	if err := entity.ValidateForm(form); err != nil {
		return nil, classify(err, "submit")
	}

	if len(formData) == 0 {
		formData = json.RawMessage("{}")
	}
	employeeName := firstNonEmpty(form.Employee(), actor.Name, entity.UnknownEmployeeName)
	total := form.Total()
	proofs := form.ProofRefs()

	req := &entity.Request{
		FormType:     formType,
		UserID:       actor.ID,
		EmployeeName: employeeName,
		Amount:       total,
		Status:       entity.RequestStatusPending,
		FormData:     formData,
		Bills:        form.LineItems(),
		Proofs:       proofs,
	}
	voucher := &entity.Voucher{
		FormType:     formType,
		EmployeeID:   actor.ID,
		EmployeeName: employeeName,
		ManagerID:    actor.ManagerID,
		FormData:     formData,
		TotalAmount:  total,
		Proofs:       proofs,
		Status:       entity.VoucherStatusPending,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		number, err := s.numberer.Next(txCtx)
		if err != nil {
			return err
		}
		voucher.VoucherNo = number
		voucher.RequestID = req.ID

		if err := s.voucherRepo.Create(txCtx, voucher); err != nil {
			return fmt.Errorf("create voucher: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit request", "error", err, "form_type", formType, "user_id", actor.ID)
		return nil, classify(err, "submission failed")
	}

	s.logger.Info("Request submitted",
		"form_type", formType,
		"request_id", req.ID,
		"voucher_no", voucher.VoucherNo,
		"user_id", actor.ID,
		"amount", total,
	)
	if s.events != nil {
		s.events.DispatchAsync(ctx, buildEvent(event.TypeRequestSubmitted, actor, req, voucher, ""))
	}

	return &Submission{Request: req, Voucher: voucher}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
