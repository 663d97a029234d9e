package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestSubmitted       Type = "request.submitted"
	TypeRequestManagerApproved Type = "request.manager_approved"
	TypeRequestManagerRejected Type = "request.manager_rejected"
	TypeRequestAdminApproved   Type = "request.admin_approved"
	TypeRequestAdminRejected   Type = "request.admin_rejected"
	TypeVoucherCompleted       Type = "voucher.completed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestSubmitted,
		TypeRequestManagerApproved,
		TypeRequestManagerRejected,
		TypeRequestAdminApproved,
		TypeRequestAdminRejected,
		TypeVoucherCompleted:
		return true
	default:
		return false
	}
}
