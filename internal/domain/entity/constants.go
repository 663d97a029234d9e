package entity

// Role identifies what a user is allowed to see and do
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// IsValid returns true if the role is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

// FormType is the expense category tag of a request
type FormType string

const (
	FormTypeCashPayment      FormType = "cash_payment"
	FormTypeLocalTravel      FormType = "local_travel"
	FormTypeOutstationTravel FormType = "outstation_travel"
	FormTypeVendorPayment    FormType = "vendor_payment"
	FormTypeReimbursement    FormType = "reimbursement"
)

// FormTypes lists every category in a stable order
var FormTypes = []FormType{
	FormTypeCashPayment,
	FormTypeLocalTravel,
	FormTypeOutstationTravel,
	FormTypeVendorPayment,
	FormTypeReimbursement,
}

// IsValid returns true if the form type is one of the five categories
func (f FormType) IsValid() bool {
	for _, ft := range FormTypes {
		if ft == f {
			return true
		}
	}
	return false
}

// String returns the string representation of the form type
func (f FormType) String() string {
	return string(f)
}

// Approval actions accepted from managers and admins
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Default rejection reasons when the caller does not supply one
const (
	DefaultManagerRejectReason = "Rejected by manager"
	DefaultAdminRejectReason   = "Rejected by admin"
)

// UnknownEmployeeName is shown when neither the user nor the form carries a name
const UnknownEmployeeName = "Unknown"
