package entity

import (
	"encoding/json"
	"time"
)

// Voucher status values
const (
	VoucherStatusPending         = "pending"
	VoucherStatusManagerApproved = "managerApproved"
	VoucherStatusApproved        = "approved"
	VoucherStatusRejected        = "rejected"
	VoucherStatusCompleted       = "completed"
)

// VoucherNumberPrefix starts every voucher number: VCH<YYYY><MM><seq>
const VoucherNumberPrefix = "VCH"

// Voucher is the unified cross-category view of a request, used for
// approval tracking, transactions and printing.
type Voucher struct {
	ID           int64           `json:"id"`
	VoucherNo    string          `json:"voucher_no"`
	RequestID    int64           `json:"request_id"`
	FormType     FormType        `json:"form_type"`
	EmployeeID   int64           `json:"employee_id"`
	EmployeeName string          `json:"employee_name"`
	ManagerID    *int64          `json:"manager_id,omitempty"`
	FormData     json.RawMessage `json:"form_data"`
	TotalAmount  float64         `json:"total_amount"` // fixed at creation
	Proofs       []string        `json:"proofs"`
	Status       string          `json:"status"`

	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      *int64     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CompletedBy     *int64     `json:"completed_by,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	TransactionDate *time.Time `json:"transaction_date,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// AllowedActions is filled per caller on reads; it is not stored
	AllowedActions []string `json:"allowed_actions,omitempty"`
}

// VoucherFilter narrows voucher listings
type VoucherFilter struct {
	Status   string
	FormType FormType
	Limit    int
	Offset   int
}
