package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-portal/internal/application/dispatcher"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/internal/domain/event"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

type approvalFixture struct {
	requests *mockRequestRepo
	vouchers *mockVoucherRepo
	events   dispatcher.Dispatcher
	svc      *approvalServiceImpl
	now      time.Time
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()
	f := &approvalFixture{
		requests: newMockRequestRepo(),
		vouchers: newMockVoucherRepo(),
		events:   dispatcher.NewDispatcher(),
		now:      time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { _ = f.events.Close() })

	svc := NewApprovalService(f.requests, f.vouchers, &mockTxManager{}, NewVisibilityResolver(testUsers()), f.events, &mockLogger{})
	f.svc = svc.(*approvalServiceImpl)
	f.svc.now = func() time.Time { return f.now }
	return f
}

// pair seeds a request and its voucher owned by owner
func (f *approvalFixture) pair(owner *entity.User, requestStatus, voucherStatus string) (*entity.Request, *entity.Voucher) {
	req := f.requests.put(&entity.Request{
		FormType:     entity.FormTypeCashPayment,
		UserID:       owner.ID,
		EmployeeName: owner.Name,
		Amount:       2500,
		Status:       requestStatus,
	})
	v := f.vouchers.put(&entity.Voucher{
		VoucherNo:   "VCH2024050001",
		RequestID:   req.ID,
		FormType:    entity.FormTypeCashPayment,
		EmployeeID:  owner.ID,
		TotalAmount: 2500,
		Status:      voucherStatus,
	})
	return req, v
}

func (f *approvalFixture) stored(t *testing.T, req *entity.Request, v *entity.Voucher) (*entity.Request, *entity.Voucher) {
	t.Helper()
	gotReq, err := f.requests.GetByID(context.Background(), req.FormType, req.ID)
	require.NoError(t, err)
	gotV, err := f.vouchers.GetByID(context.Background(), v.ID)
	require.NoError(t, err)
	return gotReq, gotV
}

func TestApprovalService_ManagerApproveMovesPair(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(employee1, "pending", "pending")

	res, err := f.svc.ManagerActOnVoucher(context.Background(), manager.Actor(), v.ID, ActionInput{Action: "approve", Remarks: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "managerApproved", res.Voucher.Status)
	assert.Equal(t, "manager_approved", res.Request.Status)

	gotReq, gotV := f.stored(t, req, v)
	assert.Equal(t, "manager_approved", gotReq.Status)
	assert.Equal(t, "managerApproved", gotV.Status)
	require.NotNil(t, gotV.ApprovedBy)
	assert.Equal(t, mgrID, *gotV.ApprovedBy)
	assert.Equal(t, f.now, *gotV.ApprovedAt)
	assert.Equal(t, "ok", gotReq.Remarks)
	assert.Equal(t, int64(2), gotReq.Version)
	assert.Equal(t, int64(2), gotV.Version)
}

func TestApprovalService_ManagerRejectDefaultsReason(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(employee2, "pending", "pending")

	_, err := f.svc.ManagerActOnRequest(context.Background(), manager.Actor(), req.FormType, req.ID, ActionInput{Action: "reject"})
	require.NoError(t, err)

	gotReq, gotV := f.stored(t, req, v)
	assert.Equal(t, "rejected", gotReq.Status)
	assert.Equal(t, "rejected", gotV.Status)
	assert.Equal(t, entity.DefaultManagerRejectReason, gotReq.RejectionReason)
	assert.Equal(t, entity.DefaultManagerRejectReason, gotV.RejectionReason)
	require.NotNil(t, gotReq.RejectedBy)
	assert.Equal(t, mgrID, *gotReq.RejectedBy)
}

func TestApprovalService_ManagerOutsideTeamIsForbidden(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(outsider, "pending", "pending")

	_, err := f.svc.ManagerActOnVoucher(context.Background(), manager.Actor(), v.ID, ActionInput{Action: "approve"})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden), "got %v", err)

	_, err = f.svc.ManagerActOnRequest(context.Background(), manager.Actor(), req.FormType, req.ID, ActionInput{Action: "reject"})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden), "got %v", err)

	gotReq, gotV := f.stored(t, req, v)
	assert.Equal(t, "pending", gotReq.Status)
	assert.Equal(t, "pending", gotV.Status)
	assert.Equal(t, int64(1), gotV.Version)
}

func TestApprovalService_ManagerCannotActOnOwnRequest(t *testing.T) {
	f := newApprovalFixture(t)
	_, v := f.pair(manager, "pending", "pending")

	_, err := f.svc.ManagerActOnVoucher(context.Background(), manager.Actor(), v.ID, ActionInput{Action: "approve"})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestApprovalService_RoleGates(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(employee1, "pending", "pending")
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"employee as manager", func() error {
			_, err := f.svc.ManagerActOnVoucher(ctx, employee1.Actor(), v.ID, ActionInput{Action: "approve"})
			return err
		}},
		{"admin as manager", func() error {
			_, err := f.svc.ManagerActOnRequest(ctx, adminUser.Actor(), req.FormType, req.ID, ActionInput{Action: "approve"})
			return err
		}},
		{"manager as admin", func() error {
			_, err := f.svc.AdminActOnVoucher(ctx, manager.Actor(), v.ID, ActionInput{Action: "approve"})
			return err
		}},
		{"manager completes", func() error {
			_, err := f.svc.MarkCompleted(ctx, manager.Actor(), v.ID, CompleteInput{})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.True(t, apperr.IsKind(err, apperr.KindForbidden), "got %v", err)
		})
	}

	gotReq, gotV := f.stored(t, req, v)
	assert.Equal(t, "pending", gotReq.Status)
	assert.Equal(t, "pending", gotV.Status)
}

func TestApprovalService_InvalidAction(t *testing.T) {
	f := newApprovalFixture(t)
	_, v := f.pair(employee1, "pending", "pending")

	for _, action := range []string{"", "escalate", "approved"} {
		_, err := f.svc.ManagerActOnVoucher(context.Background(), manager.Actor(), v.ID, ActionInput{Action: action})
		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "action %q", action)
		assert.Contains(t, err.Error(), "invalid action")
	}
}

func TestApprovalService_NotFound(t *testing.T) {
	f := newApprovalFixture(t)

	_, err := f.svc.AdminActOnVoucher(context.Background(), adminUser.Actor(), 404, ActionInput{Action: "approve"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.svc.AdminActOnRequest(context.Background(), adminUser.Actor(), entity.FormTypeLocalTravel, 404, ActionInput{Action: "approve"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.svc.AdminActOnRequest(context.Background(), adminUser.Actor(), "petty", 1, ActionInput{Action: "approve"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestApprovalService_AdminApproveAfterManager(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(employee1, "manager_approved", "managerApproved")

	res, err := f.svc.AdminActOnRequest(context.Background(), adminUser.Actor(), req.FormType, req.ID, ActionInput{Action: "approve"})
	require.NoError(t, err)
	assert.Equal(t, "admin_approved", res.Request.Status)
	assert.Equal(t, "approved", res.Voucher.Status)

	gotReq, gotV := f.stored(t, req, v)
	assert.Equal(t, "admin_approved", gotReq.Status)
	assert.Equal(t, "approved", gotV.Status)
	require.NotNil(t, gotReq.ApprovedBy)
	assert.Equal(t, adminUser.ID, *gotReq.ApprovedBy)
}

func TestApprovalService_AdminActsOnPendingManagerSubmission(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(manager, "pending", "pending")

	_, err := f.svc.AdminActOnVoucher(context.Background(), adminUser.Actor(), v.ID, ActionInput{Action: "reject", Reason: "no receipt"})
	require.NoError(t, err)

	gotReq, gotV := f.stored(t, req, v)
	assert.Equal(t, "admin_rejected", gotReq.Status)
	assert.Equal(t, "rejected", gotV.Status)
	assert.Equal(t, "no receipt", gotReq.RejectionReason)
	assert.Equal(t, "no receipt", gotV.RejectionReason)
}

func TestApprovalService_IllegalTransitionsConflict(t *testing.T) {
	tests := []struct {
		name      string
		reqStatus string
		vchStatus string
		admin     bool
		action    string
	}{
		{"manager approves rejected", "rejected", "rejected", false, "approve"},
		{"manager approves twice", "manager_approved", "managerApproved", false, "approve"},
		{"admin approves rejected", "admin_rejected", "rejected", true, "approve"},
		{"admin rejects completed", "admin_approved", "completed", true, "reject"},
		{"unknown legacy status", "on_hold", "on_hold", true, "approve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newApprovalFixture(t)
			req, v := f.pair(employee1, tt.reqStatus, tt.vchStatus)

			var err error
			if tt.admin {
				_, err = f.svc.AdminActOnVoucher(context.Background(), adminUser.Actor(), v.ID, ActionInput{Action: tt.action})
			} else {
				_, err = f.svc.ManagerActOnVoucher(context.Background(), manager.Actor(), v.ID, ActionInput{Action: tt.action})
			}
			assert.True(t, apperr.IsKind(err, apperr.KindConflict), "got %v", err)

			gotReq, gotV := f.stored(t, req, v)
			assert.Equal(t, tt.reqStatus, gotReq.Status)
			assert.Equal(t, tt.vchStatus, gotV.Status)
		})
	}
}

func TestApprovalService_StaleExpectedVersion(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(employee1, "pending", "pending")

	_, err := f.svc.ManagerActOnRequest(context.Background(), manager.Actor(), req.FormType, req.ID,
		ActionInput{Action: "approve", ExpectedVersion: int64Ptr(7)})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "got %v", err)

	gotReq, gotV := f.stored(t, req, v)
	assert.Equal(t, "pending", gotReq.Status)
	assert.Equal(t, "pending", gotV.Status)

	_, err = f.svc.ManagerActOnRequest(context.Background(), manager.Actor(), req.FormType, req.ID,
		ActionInput{Action: "approve", ExpectedVersion: int64Ptr(1)})
	assert.NoError(t, err)
}

func TestApprovalService_ConcurrentWriterLoses(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(employee1, "pending", "pending")

	// another writer bumps the voucher between our read and write
	f.requests.updateStateFunc = func(ctx context.Context, r *entity.Request) error {
		f.requests.updateStateFunc = nil
		stored, _ := f.vouchers.GetByID(ctx, v.ID)
		stored.Remarks = "racing"
		require.NoError(t, f.vouchers.UpdateState(ctx, stored))
		return f.requests.UpdateState(ctx, r)
	}

	_, err := f.svc.ManagerActOnRequest(context.Background(), manager.Actor(), req.FormType, req.ID, ActionInput{Action: "approve"})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "got %v", err)
}

func TestApprovalService_LegacyRequestWithoutVoucher(t *testing.T) {
	f := newApprovalFixture(t)
	req := f.requests.put(&entity.Request{FormType: entity.FormTypeReimbursement, UserID: employee1.ID, Status: ""})

	res, err := f.svc.ManagerActOnRequest(context.Background(), manager.Actor(), req.FormType, req.ID, ActionInput{Action: "approve"})
	require.NoError(t, err)
	assert.Nil(t, res.Voucher)
	assert.Equal(t, "manager_approved", res.Request.Status)
}

func TestApprovalService_MarkCompleted(t *testing.T) {
	f := newApprovalFixture(t)
	req, v := f.pair(employee1, "admin_approved", "approved")

	txDate := time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)
	got, err := f.svc.MarkCompleted(context.Background(), adminUser.Actor(), v.ID, CompleteInput{TransactionDate: &txDate, Remarks: "NEFT 991"})
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	require.NotNil(t, got.TransactionDate)
	assert.Equal(t, txDate, *got.TransactionDate)
	assert.Equal(t, "NEFT 991", got.Remarks)
	require.NotNil(t, got.CompletedBy)
	assert.Equal(t, adminUser.ID, *got.CompletedBy)

	// the request keeps its final approval state
	gotReq, _ := f.stored(t, req, v)
	assert.Equal(t, "admin_approved", gotReq.Status)
}

func TestApprovalService_MarkCompletedDefaultsTransactionDate(t *testing.T) {
	f := newApprovalFixture(t)
	_, v := f.pair(employee1, "admin_approved", "approved")

	got, err := f.svc.MarkCompleted(context.Background(), adminUser.Actor(), v.ID, CompleteInput{})
	require.NoError(t, err)
	require.NotNil(t, got.TransactionDate)
	assert.Equal(t, f.now, *got.TransactionDate)
}

func TestApprovalService_MarkCompletedRequiresApproved(t *testing.T) {
	for _, status := range []string{"pending", "managerApproved", "rejected", "completed"} {
		t.Run(status, func(t *testing.T) {
			f := newApprovalFixture(t)
			_, v := f.pair(employee1, "pending", status)

			_, err := f.svc.MarkCompleted(context.Background(), adminUser.Actor(), v.ID, CompleteInput{})
			require.Error(t, err)
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
			assert.Contains(t, err.Error(), "Only approved vouchers can be marked as completed")

			got, _ := f.vouchers.GetByID(context.Background(), v.ID)
			assert.Equal(t, status, got.Status)
			assert.Nil(t, got.TransactionDate)
		})
	}
}

func TestApprovalService_PublishesEvents(t *testing.T) {
	f := newApprovalFixture(t)
	_, v := f.pair(employee1, "pending", "pending")

	got := make(chan *event.Event, 1)
	f.events.Subscribe(event.TypeRequestManagerRejected, "probe", func(ctx context.Context, evt *event.Event) error {
		got <- evt
		return nil
	})

	_, err := f.svc.ManagerActOnVoucher(context.Background(), manager.Actor(), v.ID, ActionInput{Action: "reject", Reason: "dup"})
	require.NoError(t, err)

	select {
	case evt := <-got:
		assert.Equal(t, v.ID, evt.VoucherID)
		assert.Equal(t, employee1.ID, evt.GetPayloadInt(event.KeyEmployeeID))
		assert.Equal(t, "dup", evt.GetPayloadString(event.KeyReason))
		assert.Equal(t, "VCH2024050001", evt.GetPayloadString(event.KeyVoucherNo))
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestApprovalService_NoEventOnFailure(t *testing.T) {
	f := newApprovalFixture(t)
	_, v := f.pair(employee1, "rejected", "rejected")

	var calls atomic.Int32
	f.events.Subscribe(event.TypeRequestManagerApproved, "probe", func(ctx context.Context, evt *event.Event) error {
		calls.Add(1)
		return nil
	})
	_, err := f.svc.ManagerActOnVoucher(context.Background(), manager.Actor(), v.ID, ActionInput{Action: "approve"})
	require.Error(t, err)

	require.NoError(t, f.events.Close())
	assert.Zero(t, calls.Load())
}
