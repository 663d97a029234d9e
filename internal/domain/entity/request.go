package entity

import (
	"encoding/json"
	"time"
)

// Request status values stored on the category tables.
// The column is free text; these are the values the portal writes.
const (
	RequestStatusPending         = "pending"
	RequestStatusManagerApproved = "manager_approved"
	RequestStatusAdminApproved   = "admin_approved"
	RequestStatusAdminRejected   = "admin_rejected"
	RequestStatusRejected        = "rejected"
	RequestStatusApproved        = "approved"
)

// Bill is a single line item on an expense form
type Bill struct {
	Description string `json:"description"`
	Amount      Amount `json:"amount"`
	Date        string `json:"date,omitempty"`
	Proof       string `json:"proof,omitempty"`
}

// Request is one expense submission in its category table
type Request struct {
	ID           int64           `json:"id"`
	FormType     FormType        `json:"form_type"`
	UserID       int64           `json:"user_id"`
	EmployeeName string          `json:"employee_name"`
	Amount       float64         `json:"amount"`
	Status       string          `json:"status"`
	FormData     json.RawMessage `json:"form_data"`
	Bills        []Bill          `json:"bills"`
	Proofs       []string        `json:"proofs"`

	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      *int64     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`

	// OwnerName is the submitting user's account name, joined on read
	OwnerName string `json:"owner_name,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
