package entity

import "time"

// DashboardRow is a request normalised across categories
type DashboardRow struct {
	ID           int64      `json:"id"`
	FormType     FormType   `json:"form_type"`
	UserID       int64      `json:"user_id"`
	EmployeeName string     `json:"employee_name"`
	Amount       float64    `json:"amount"`
	Status       string     `json:"status"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	Version      int64      `json:"version"`

	// AllowedActions are the triggers the caller may fire on this row
	AllowedActions []string `json:"allowed_actions"`
}

// BucketStats is a count and amount total for one group of rows
type BucketStats struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// DashboardStats summarises a merged request list
type DashboardStats struct {
	Total      BucketStats              `json:"total"`
	Pending    BucketStats              `json:"pending"`
	Approved   BucketStats              `json:"approved"`
	Rejected   BucketStats              `json:"rejected"`
	Completed  BucketStats              `json:"completed"`
	ByStatus   map[string]BucketStats   `json:"by_status"`
	ByFormType map[FormType]BucketStats `json:"by_form_type"`
}

// Dashboard is the per-caller view returned by the aggregation service.
// MyRequests is only populated for managers.
type Dashboard struct {
	Stats      DashboardStats `json:"stats"`
	Requests   []DashboardRow `json:"requests"`
	MyRequests []DashboardRow `json:"my_requests,omitempty"`
	Vouchers   []*Voucher     `json:"vouchers"`
}
