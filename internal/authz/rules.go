package authz

import (
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/permissions"
)

// Action identifies an operation an actor may attempt.
type Action string

// Action catalog.
const (
	ActionTenantCreate Action = "tenant.create"
	ActionTenantView   Action = "tenant.view"
	ActionTenantUpdate Action = "tenant.update"

	ActionQueueView   Action = "queue.view"
	ActionQueueCreate Action = "queue.create"
	ActionQueueUpdate Action = "queue.update"
	ActionQueueDelete Action = "queue.delete"

	ActionCategoryView   Action = "category.view"
	ActionCategoryCreate Action = "category.create"
	ActionCategoryUpdate Action = "category.update"
	ActionCategoryDelete Action = "category.delete"

	ActionUserView              Action = "user.view"
	ActionUserInvite            Action = "user.invite"
	ActionUserDelete            Action = "user.delete"
	ActionUserResetPassword     Action = "user.reset_password"
	ActionUserManagePermissions Action = "user.manage_permissions"

	ActionTicketCreate Action = "ticket.create"
	ActionTicketView   Action = "ticket.view"
	ActionTicketUpdate Action = "ticket.update"
	ActionTicketDelete Action = "ticket.delete"
	ActionTicketAssign Action = "ticket.assign"

	ActionCommentCreate Action = "comment.create"
	ActionCommentView   Action = "comment.view"

	ActionAssetView        Action = "asset.view"
	ActionAssetManage      Action = "asset.manage"
	ActionWebhookManage    Action = "webhook.manage"
	ActionAutomationManage Action = "automation.manage"

	ActionAuditView        Action = "audit.view"
	ActionIsolationInspect Action = "isolation.inspect"
)

// Rule declares who may attempt an action.
type Rule struct {
	// Roles qualify outright.
	Roles []identity.Role
	// Capability lets an AGENT outside Roles qualify when the override is granted.
	Capability permissions.Capability
	// OwnerBypass lets an AGENT act on a resource it owns or is assigned without Capability.
	OwnerBypass bool
	// Ownership restricts USER to resources it owns.
	Ownership bool
	// TargetGuard protects administrative targets from lower tiers.
	TargetGuard bool
}

func (r Rule) allows(role identity.Role) bool {
	for _, candidate := range r.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

var (
	everyone = []identity.Role{identity.RoleGlobalAdmin, identity.RoleTenantAdmin, identity.RoleAgent, identity.RoleUser}
	staff    = []identity.Role{identity.RoleGlobalAdmin, identity.RoleTenantAdmin, identity.RoleAgent}
	admins   = []identity.Role{identity.RoleGlobalAdmin, identity.RoleTenantAdmin}
	owners   = []identity.Role{identity.RoleGlobalAdmin, identity.RoleTenantAdmin, identity.RoleUser}
)

var rules = map[Action]Rule{
	ActionTenantCreate: {Roles: []identity.Role{identity.RoleGlobalAdmin}},
	ActionTenantView:   {Roles: everyone},
	ActionTenantUpdate: {Roles: admins},

	ActionQueueView:   {Roles: staff},
	ActionQueueCreate: {Roles: admins},
	ActionQueueUpdate: {Roles: admins},
	ActionQueueDelete: {Roles: admins},

	ActionCategoryView:   {Roles: everyone},
	ActionCategoryCreate: {Roles: admins, Capability: permissions.CanCreateCategories},
	ActionCategoryUpdate: {Roles: admins, Capability: permissions.CanEditCategories},
	ActionCategoryDelete: {Roles: admins, Capability: permissions.CanDeleteCategories},

	ActionUserView:              {Roles: staff},
	ActionUserInvite:            {Roles: admins, Capability: permissions.CanInviteUsers},
	ActionUserDelete:            {Roles: admins, Capability: permissions.CanDeleteUsers, TargetGuard: true},
	ActionUserResetPassword:     {Roles: admins, Capability: permissions.CanResetPasswords, TargetGuard: true},
	ActionUserManagePermissions: {Roles: admins, TargetGuard: true},

	ActionTicketCreate: {Roles: everyone},
	ActionTicketView:   {Roles: owners, Capability: permissions.CanViewAllTickets, OwnerBypass: true, Ownership: true},
	ActionTicketUpdate: {Roles: owners, Capability: permissions.CanEditAllTickets, OwnerBypass: true, Ownership: true},
	ActionTicketDelete: {Roles: admins},
	ActionTicketAssign: {Roles: admins, Capability: permissions.CanAssignAgents},

	ActionCommentCreate: {Roles: everyone, Ownership: true},
	ActionCommentView:   {Roles: everyone, Ownership: true},

	ActionAssetView:        {Roles: staff},
	ActionAssetManage:      {Roles: admins},
	ActionWebhookManage:    {Roles: admins},
	ActionAutomationManage: {Roles: admins},

	ActionAuditView:        {Roles: admins},
	ActionIsolationInspect: {Roles: []identity.Role{identity.RoleGlobalAdmin}},
}

// RuleFor returns the declared rule for an action.
func RuleFor(action Action) (Rule, bool) {
	rule, ok := rules[action]
	return rule, ok
}

// Actions lists every declared action.
func Actions() []Action {
	actions := make([]Action, 0, len(rules))
	for action := range rules {
		actions = append(actions, action)
	}
	return actions
}

// ParseAction validates an action name against the catalog.
func ParseAction(raw string) (Action, bool) {
	action := Action(raw)
	_, ok := rules[action]
	return action, ok
}
