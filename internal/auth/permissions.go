package auth

import (
	"context"
	"fmt"
	"slices"
)

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermRead   Permission = "read"
	PermCreate Permission = "create"
	PermUpdate Permission = "update"
	PermDelete Permission = "delete"
	PermExport Permission = "export"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{PermRead, PermCreate, PermUpdate, PermDelete, PermExport}

// writePermissions are the permissions whose absence makes a session read-only.
var writePermissions = []Permission{PermCreate, PermUpdate, PermDelete}

// ParsePermission converts a configuration string to a Permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !slices.Contains(AllPermissions, p) {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

// HasPermission reports whether the session carries p. A nil or
// unauthenticated session has no permissions.
func (s *Session) HasPermission(p Permission) bool {
	if s == nil || !s.Authenticated {
		return false
	}
	return slices.Contains(s.Permissions, p)
}

// HasAny reports whether the session carries at least one of perms.
func (s *Session) HasAny(perms ...Permission) bool {
	return slices.ContainsFunc(perms, s.HasPermission)
}

// HasAll reports whether the session carries every one of perms.
func (s *Session) HasAll(perms ...Permission) bool {
	if s == nil || !s.Authenticated {
		return false
	}
	for _, p := range perms {
		if !s.HasPermission(p) {
			return false
		}
	}
	return true
}

// SessionSource yields the current session, or nil when logged out.
// *SessionManager implements it.
type SessionSource interface {
	Session(ctx context.Context) (*Session, error)
}

// PermissionModel answers authorisation questions about the current session.
// All queries return false when no one is logged in.
type PermissionModel struct {
	sessions SessionSource
	roles    *RoleCatalog
}

// NewPermissionModel creates a PermissionModel reading from sessions.
// roles identifies which role IDs are designated read-only.
func NewPermissionModel(sessions SessionSource, roles *RoleCatalog) *PermissionModel {
	return &PermissionModel{sessions: sessions, roles: roles}
}

func (m *PermissionModel) current(ctx context.Context) *Session {
	s, err := m.sessions.Session(ctx)
	if err != nil {
		return nil
	}
	return s
}

// HasPermission reports whether the current session carries p.
func (m *PermissionModel) HasPermission(ctx context.Context, p Permission) bool {
	return m.current(ctx).HasPermission(p)
}

// HasAny reports whether the current session carries at least one of perms.
func (m *PermissionModel) HasAny(ctx context.Context, perms ...Permission) bool {
	return m.current(ctx).HasAny(perms...)
}

// HasAll reports whether the current session carries all of perms.
func (m *PermissionModel) HasAll(ctx context.Context, perms ...Permission) bool {
	return m.current(ctx).HasAll(perms...)
}

// IsReadOnly reports whether the current session may not modify data:
// its role is designated read-only, or it lacks every write permission.
func (m *PermissionModel) IsReadOnly(ctx context.Context) bool {
	return isReadOnly(m.current(ctx), m.roles)
}

// RequirePermission returns the authorisation result for p. Surfacing a
// denial message is left to the caller.
func (m *PermissionModel) RequirePermission(ctx context.Context, p Permission) bool {
	return m.HasPermission(ctx, p)
}

// Authorize is RequirePermission with a typed error for transport layers.
// It returns ErrNotAuthenticated when no session exists and
// *PermissionError when the session lacks p.
func (m *PermissionModel) Authorize(ctx context.Context, p Permission) (*Session, error) {
	s, err := m.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil || !s.Authenticated {
		return nil, ErrNotAuthenticated
	}
	if !s.HasPermission(p) {
		return s, &PermissionError{Permission: p, Role: s.RoleID}
	}
	return s, nil
}

func isReadOnly(s *Session, roles *RoleCatalog) bool {
	if s == nil || !s.Authenticated {
		return true
	}
	if roles != nil {
		if r, ok := roles.Lookup(s.RoleID); ok && r.ReadOnly {
			return true
		}
	}
	return !s.HasAny(writePermissions...)
}
