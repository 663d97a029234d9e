package service

import (
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/internal/domain/workflow"
)

// roleTriggers are the triggers each role may fire through the API
var roleTriggers = map[entity.Role]map[workflow.Trigger]bool{
	entity.RoleManager: {
		workflow.TriggerManagerApprove: true,
		workflow.TriggerManagerReject:  true,
	},
	entity.RoleAdmin: {
		workflow.TriggerAdminApprove: true,
		workflow.TriggerAdminReject:  true,
		workflow.TriggerComplete:     true,
	},
}

// AllowedActions lists the triggers actor can fire on a record in status
// owned by owner. scope is the actor's resolved scope, so managers only
// get actions for their team and never for their own rows.
func AllowedActions(actor entity.Actor, lc *workflow.Lifecycle, status string, owner int64, scope entity.Scope) []string {
	actions := []string{}
	allowed := roleTriggers[actor.Role]
	if len(allowed) == 0 || !scope.Allows(owner) {
		return actions
	}
	for _, t := range lc.Triggers(status) {
		if allowed[t] {
			actions = append(actions, t.String())
		}
	}
	return actions
}

func annotateVouchers(actor entity.Actor, scope entity.Scope, vouchers ...*entity.Voucher) {
	for _, v := range vouchers {
		if v != nil {
			v.AllowedActions = AllowedActions(actor, workflow.Vouchers, v.Status, v.EmployeeID, scope)
		}
	}
}

func annotateRows(actor entity.Actor, scope entity.Scope, rows []entity.DashboardRow) {
	for i := range rows {
		rows[i].AllowedActions = AllowedActions(actor, workflow.Requests, rows[i].Status, rows[i].UserID, scope)
	}
}
