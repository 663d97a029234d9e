package workflow

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidTransition is returned when a trigger is not allowed from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned for a stored status outside the lifecycle
	ErrInvalidState = errors.New("invalid state")
)

// TransitionError names the refused move
type TransitionError struct {
	Lifecycle string
	From      State
	Trigger   Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %q", e.Lifecycle, e.Trigger, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Lifecycle is the closed transition table of one record kind.
// Tables are built once at init and read concurrently afterwards.
type Lifecycle struct {
	name    string
	initial State
	states  map[State]bool
	edges   map[State]map[Trigger]State
}

// NewLifecycle creates an empty table over states. Blank stored statuses
// are read as initial.
func NewLifecycle(name string, initial State, states ...State) *Lifecycle {
	l := &Lifecycle{
		name:    name,
		initial: initial,
		states:  make(map[State]bool, len(states)),
		edges:   make(map[State]map[Trigger]State),
	}
	for _, s := range states {
		l.states[s] = true
	}
	if !l.states[initial] {
		panic(fmt.Sprintf("%s: initial state %q not in lifecycle", name, initial))
	}
	return l
}

// Allow adds from --trigger--> to. States outside the lifecycle panic.
func (l *Lifecycle) Allow(from State, trigger Trigger, to State) *Lifecycle {
	if !l.states[from] || !l.states[to] {
		panic(fmt.Sprintf("%s: %q -> %q leaves the lifecycle", l.name, from, to))
	}
	if l.edges[from] == nil {
		l.edges[from] = make(map[Trigger]State)
	}
	l.edges[from][trigger] = to
	return l
}

// Name returns the record kind the table governs
func (l *Lifecycle) Name() string {
	return l.name
}

// Parse maps a stored status onto the lifecycle
func (l *Lifecycle) Parse(status string) (State, error) {
	if status == "" {
		return l.initial, nil
	}
	s := State(status)
	if !l.states[s] {
		return "", fmt.Errorf("%w: %s %q", ErrInvalidState, l.name, status)
	}
	return s, nil
}

// Next returns the state trigger leads to from status
func (l *Lifecycle) Next(status string, trigger Trigger) (State, error) {
	from, err := l.Parse(status)
	if err != nil {
		return "", err
	}
	to, ok := l.edges[from][trigger]
	if !ok {
		return "", &TransitionError{Lifecycle: l.name, From: from, Trigger: trigger}
	}
	return to, nil
}

// Triggers lists the triggers allowed from status, sorted
func (l *Lifecycle) Triggers(status string) []Trigger {
	from, err := l.Parse(status)
	if err != nil {
		return []Trigger{}
	}
	triggers := make([]Trigger, 0, len(l.edges[from]))
	for t := range l.edges[from] {
		triggers = append(triggers, t)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// Requests is the category request lifecycle. Admin may act on pending
// requests because managers' own submissions skip the manager stage.
var Requests = NewLifecycle("request", RequestPending, RequestStates...).
	Allow(RequestPending, TriggerManagerApprove, RequestManagerApproved).
	Allow(RequestPending, TriggerManagerReject, RequestRejected).
	Allow(RequestPending, TriggerAdminApprove, RequestAdminApproved).
	Allow(RequestPending, TriggerAdminReject, RequestAdminRejected).
	Allow(RequestManagerApproved, TriggerAdminApprove, RequestAdminApproved).
	Allow(RequestManagerApproved, TriggerAdminReject, RequestAdminRejected)

// Vouchers is the voucher lifecycle; only vouchers reach completed
var Vouchers = NewLifecycle("voucher", VoucherPending, VoucherStates...).
	Allow(VoucherPending, TriggerManagerApprove, VoucherManagerApproved).
	Allow(VoucherPending, TriggerManagerReject, VoucherRejected).
	Allow(VoucherPending, TriggerAdminApprove, VoucherApproved).
	Allow(VoucherPending, TriggerAdminReject, VoucherRejected).
	Allow(VoucherManagerApproved, TriggerAdminApprove, VoucherApproved).
	Allow(VoucherManagerApproved, TriggerAdminReject, VoucherRejected).
	Allow(VoucherApproved, TriggerComplete, VoucherCompleted)
