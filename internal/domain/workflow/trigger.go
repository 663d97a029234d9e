package workflow

// Trigger is an approval decision or the payout step
type Trigger string

const (
	TriggerManagerApprove Trigger = "manager_approve"
	TriggerManagerReject  Trigger = "manager_reject"
	TriggerAdminApprove   Trigger = "admin_approve"
	TriggerAdminReject    Trigger = "admin_reject"
	TriggerComplete       Trigger = "complete"
)

func (t Trigger) String() string {
	return string(t)
}

// IsReject reports whether the trigger is a rejection at either stage
func (t Trigger) IsReject() bool {
	return t == TriggerManagerReject || t == TriggerAdminReject
}
