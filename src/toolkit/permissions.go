package toolkit

import (
	"strings"
	"time"
)

// ExecutionContext carries the caller's granted permissions for one call. It
// is passed per-call and never stored.
type ExecutionContext struct {
	Permissions []Permission
	Timestamp   time.Time
}

// NewExecutionContext creates a context with the given grants, stamped now.
func NewExecutionContext(permissions ...Permission) *ExecutionContext {
	return &ExecutionContext{Permissions: permissions, Timestamp: time.Now()}
}

// Grants reports whether every permission in required is granted.
func (c *ExecutionContext) Grants(required []Permission) bool {
	for _, need := range required {
		found := false
		for _, have := range c.Permissions {
			if have == need {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// mutatingVerbs are the tool-name tokens that imply a write requirement when
// a tool declares no explicit permissions.
var mutatingVerbs = map[string]bool{
	"create": true,
	"update": true,
	"delete": true,
	"remove": true,
	"set":    true,
	"start":  true,
	"stop":   true,
}

// RequiredPermissions returns the permission set a tool call must satisfy.
// An explicit declaration on the tool always wins. Otherwise the requirement
// is inferred from the tool name: if any underscore-separated token is a
// mutating verb (create, update, delete, remove, set, start, stop) the tool
// requires write, else read. Inference is a fallback for tools that predate
// explicit declarations, not the preferred path.
func RequiredPermissions(tool Tool) []Permission {
	if perms := tool.GetPermissions(); len(perms) > 0 {
		return perms
	}
	for _, token := range strings.Split(strings.ToLower(tool.GetName()), "_") {
		if mutatingVerbs[token] {
			return []Permission{PermissionWrite}
		}
	}
	return []Permission{PermissionRead}
}
