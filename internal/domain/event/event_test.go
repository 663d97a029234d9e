package event

import (
	"testing"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"submitted", TypeRequestSubmitted, true},
		{"manager approved", TypeRequestManagerApproved, true},
		{"manager rejected", TypeRequestManagerRejected, true},
		{"admin approved", TypeRequestAdminApproved, true},
		{"admin rejected", TypeRequestAdminRejected, true},
		{"voucher completed", TypeVoucherCompleted, true},
		{"unknown", Type("instance.created"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		KeyStatus: "managerApproved",
		KeyAmount: 100.50,
	}

	e := NewEvent(TypeRequestManagerApproved, 42, payload)

	if e.ID == "" {
		t.Error("Event ID should not be empty")
	}
	if e.CorrelationID == "" || e.CorrelationID == e.ID {
		t.Errorf("CorrelationID = %q, want a distinct generated id", e.CorrelationID)
	}
	if e.VoucherID != 42 {
		t.Errorf("VoucherID = %v, want 42", e.VoucherID)
	}
	if e.GetPayloadString(KeyStatus) != "managerApproved" {
		t.Errorf("payload status = %v", e.Payload[KeyStatus])
	}
	if e.GetPayloadFloat(KeyAmount) != 100.50 {
		t.Errorf("payload amount = %v", e.Payload[KeyAmount])
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	e := NewEvent(TypeVoucherCompleted, 1, nil)
	if e.Payload == nil {
		t.Fatal("Payload should be initialised")
	}
	if got := e.GetPayloadInt(KeyRequestID); got != 0 {
		t.Errorf("GetPayloadInt on missing key = %v, want 0", got)
	}
}
