package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-portal/internal/application/dispatcher"
	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/internal/domain/event"
)

// NotificationService turns approval events into user messages.
// Delivery failures are logged and never reach the action that raised them.
type NotificationService interface {
	// Register subscribes the service to every approval event
	Register(d dispatcher.Dispatcher)

	// HandleEvent notifies the people an event concerns
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	userRepo port.UserRepository
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(userRepo port.UserRepository, notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		userRepo: userRepo,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeRequestSubmitted,
		event.TypeRequestManagerApproved,
		event.TypeRequestManagerRejected,
		event.TypeRequestAdminApproved,
		event.TypeRequestAdminRejected,
		event.TypeVoucherCompleted,
	} {
		d.Subscribe(t, "notification", s.HandleEvent)
	}
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	employeeID := evt.GetPayloadInt(event.KeyEmployeeID)
	employee, err := s.userRepo.GetByID(ctx, employeeID)
	if err != nil {
		s.logger.Error("Failed to load notification recipient", "error", err, "user_id", employeeID, "event", evt.Type)
		return nil
	}
	if employee == nil {
		s.logger.Info("Notification recipient not found", "user_id", employeeID, "event", evt.Type)
		return nil
	}

	s.send(ctx, evt, employee, employeeMessage(evt))

	// managers hear about new submissions from their team
	if evt.Type == event.TypeRequestSubmitted && employee.ManagerID != nil {
		manager, err := s.userRepo.GetByID(ctx, *employee.ManagerID)
		if err != nil {
			s.logger.Error("Failed to load manager", "error", err, "manager_id", *employee.ManagerID)
			return nil
		}
		if manager != nil {
			s.send(ctx, evt, manager, managerMessage(evt))
		}
	}
	return nil
}

func (s *notificationServiceImpl) send(ctx context.Context, evt *event.Event, to *entity.User, msg port.Message) {
	if err := s.notifier.Notify(ctx, to, msg); err != nil {
		s.logger.Error("Failed to deliver notification",
			"error", err,
			"event", evt.Type,
			"recipient_id", to.ID,
			"voucher_no", evt.GetPayloadString(event.KeyVoucherNo),
		)
		return
	}
	s.logger.Info("Notification delivered", "event", evt.Type, "recipient_id", to.ID)
}

func employeeMessage(evt *event.Event) port.Message {
	ref := recordRef(evt)
	amount := evt.GetPayloadFloat(event.KeyAmount)
	reason := evt.GetPayloadString(event.KeyReason)

	switch evt.Type {
	case event.TypeRequestSubmitted:
		return port.Message{
			Title: "Expense submitted",
			Body:  fmt.Sprintf("Your %s for %.2f was submitted and is pending approval.", ref, amount),
		}
	case event.TypeRequestManagerApproved:
		return port.Message{
			Title: "Approved by manager",
			Body:  fmt.Sprintf("Your %s for %.2f was approved by your manager and sent to admin.", ref, amount),
		}
	case event.TypeRequestAdminApproved:
		return port.Message{
			Title: "Expense approved",
			Body:  fmt.Sprintf("Your %s for %.2f received final approval.", ref, amount),
		}
	case event.TypeRequestManagerRejected, event.TypeRequestAdminRejected:
		body := fmt.Sprintf("Your %s for %.2f was rejected.", ref, amount)
		if reason != "" {
			body += " Reason: " + reason
		}
		return port.Message{Title: "Expense rejected", Body: body}
	case event.TypeVoucherCompleted:
		return port.Message{
			Title: "Payment completed",
			Body:  fmt.Sprintf("Your %s for %.2f has been paid out.", ref, amount),
		}
	default:
		return port.Message{Title: "Expense update", Body: fmt.Sprintf("Your %s changed.", ref)}
	}
}

func managerMessage(evt *event.Event) port.Message {
	return port.Message{
		Title: "Approval needed",
		Body: fmt.Sprintf("%s submitted %s for %.2f.",
			evt.GetPayloadString(event.KeyEmployeeName),
			recordRef(evt),
			evt.GetPayloadFloat(event.KeyAmount),
		),
	}
}

func recordRef(evt *event.Event) string {
	formType := evt.GetPayloadString(event.KeyFormType)
	if no := evt.GetPayloadString(event.KeyVoucherNo); no != "" {
		return fmt.Sprintf("%s voucher %s", formType, no)
	}
	return fmt.Sprintf("%s request #%d", formType, evt.GetPayloadInt(event.KeyRequestID))
}
