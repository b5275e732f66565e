package gate

import "strings"

// Action is the verb half of a permission.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
	ActionExport Action = "export"
	// ActionStatus covers moving a quotation through its workflow.
	ActionStatus Action = "status"
)

// Permission has the form "resource:action", e.g. "quotation:create".
type Permission string

const (
	WildcardAll = "*"
	// PermissionSuperAdmin matches every request.
	PermissionSuperAdmin Permission = "*:*"
)

// NewPermission joins a resource type and an action.
func NewPermission(resourceType string, action Action) Permission {
	return Permission(resourceType + ":" + string(action))
}

// ParsePermission accepts the "resource:action" text form.
func ParsePermission(s string) (Permission, bool) {
	res, act, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || res == "" || act == "" {
		return "", false
	}
	return NewPermission(res, Action(act)), true
}

// Parse splits the permission back into its parts.
func (p Permission) Parse() (resourceType string, action Action) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok {
		return "", ""
	}
	return res, Action(act)
}

// Matches reports whether p grants requested. "*:*" grants everything and
// "quotation:*" grants every quotation action.
func (p Permission) Matches(requested Permission) bool {
	if p == PermissionSuperAdmin || p == requested {
		return true
	}
	res, act := p.Parse()
	reqRes, _ := requested.Parse()
	return res == reqRes && string(act) == WildcardAll
}
