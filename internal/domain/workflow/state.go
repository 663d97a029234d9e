package workflow

// State is a lifecycle state of a request or voucher.
// Requests and vouchers share the State type but use separate state sets.
type State string

// Request states (category tables)
const (
	RequestPending         State = "pending"
	RequestManagerApproved State = "manager_approved"
	RequestAdminApproved   State = "admin_approved"
	RequestAdminRejected   State = "admin_rejected"
	RequestRejected        State = "rejected"
	RequestApproved        State = "approved"
)

// Voucher states
const (
	VoucherPending         State = "pending"
	VoucherManagerApproved State = "managerApproved"
	VoucherApproved        State = "approved"
	VoucherRejected        State = "rejected"
	VoucherCompleted       State = "completed"
)

// RequestStates is the closed set of request states
var RequestStates = []State{
	RequestPending,
	RequestManagerApproved,
	RequestAdminApproved,
	RequestAdminRejected,
	RequestRejected,
	RequestApproved,
}

// VoucherStates is the closed set of voucher states
var VoucherStates = []State{
	VoucherPending,
	VoucherManagerApproved,
	VoucherApproved,
	VoucherRejected,
	VoucherCompleted,
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}


