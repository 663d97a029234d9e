package workflow

import "strings"

// Category groups states for reporting
type Category string

const (
	CategoryPending   Category = "pending"
	CategoryApproved  Category = "approved"
	CategoryRejected  Category = "rejected"
	CategoryCompleted Category = "completed"
)

var stateCategories = map[State]Category{
	RequestPending:         CategoryPending,
	RequestManagerApproved: CategoryApproved,
	RequestAdminApproved:   CategoryApproved,
	RequestAdminRejected:   CategoryRejected,
	RequestRejected:        CategoryRejected,
	RequestApproved:        CategoryApproved,
	VoucherManagerApproved: CategoryApproved,
	VoucherCompleted:       CategoryCompleted,
}

// Category returns the reporting group of the state
func (s State) Category() Category {
	if c, ok := stateCategories[s]; ok {
		return c
	}
	return Classify(string(s))
}

// Classify groups a raw status string. Known states map through the table;
// unknown values written by older clients fall back to keyword matching so
// they still land in a bucket. Empty status counts as pending.
func Classify(status string) Category {
	if c, ok := stateCategories[State(status)]; ok {
		return c
	}

	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case s == "":
		return CategoryPending
	case strings.Contains(s, "reject"):
		return CategoryRejected
	case strings.Contains(s, "complete"):
		return CategoryCompleted
	case strings.Contains(s, "approve"):
		return CategoryApproved
	default:
		return CategoryPending
	}
}
