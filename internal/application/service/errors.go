package service

import (
	"errors"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/internal/domain/workflow"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// Messages callers can rely on
const (
	msgInvalidAction      = "invalid action"
	msgOnlyApproved       = "Only approved vouchers can be marked as completed"
	msgStaleVersion       = "record was modified by another request, reload and retry"
	msgNotOnTeam          = "record does not belong to your team"
	msgManagerOnly        = "only managers can perform manager actions"
	msgAdminOnly          = "only admins can perform admin actions"
	msgInvalidCredentials = "invalid email or password"
)

// classify maps domain and storage errors onto apperr kinds.
// Already classified errors pass through unchanged.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var missing *entity.MissingFieldsError
	var unknown *entity.ErrUnknownFormType
	switch {
	case errors.As(err, &missing), errors.As(err, &unknown):
		return apperr.Wrap(apperr.KindValidation, err, "invalid submission")
	case errors.Is(err, port.ErrStaleVersion):
		return apperr.Wrap(apperr.KindConflict, err, msgStaleVersion)
	case errors.Is(err, port.ErrDuplicate):
		return apperr.Wrap(apperr.KindConflict, err, "%s: already exists", op)
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrInvalidState):
		return apperr.Wrap(apperr.KindConflict, err, "%s", op)
	default:
		return apperr.Internal(err, "%s", op)
	}
}
