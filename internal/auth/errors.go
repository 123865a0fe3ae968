package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for auth operations. Typed errors below match these
// through errors.Is.
var (
	ErrInvalidPIN       = errors.New("auth: invalid pin")
	ErrLockedOut        = errors.New("auth: too many failed attempts")
	ErrNotAuthenticated = errors.New("auth: not authenticated")
	ErrForbidden        = errors.New("auth: insufficient permissions")
	ErrDuplicatePIN     = errors.New("auth: pin assigned to more than one role")
	ErrUnknownRole      = errors.New("auth: unknown role")
	ErrInvalidHash      = errors.New("auth: invalid pin hash")
)

// InvalidPINError reports a wrong PIN while attempts remain before lockout.
type InvalidPINError struct {
	AttemptsRemaining int
}

func (e *InvalidPINError) Error() string {
	return fmt.Sprintf("invalid pin (%d attempts remaining)", e.AttemptsRemaining)
}

// Is makes errors.Is(err, ErrInvalidPIN) true.
func (e *InvalidPINError) Is(target error) bool { return target == ErrInvalidPIN }

// LockedOutError reports that PIN entry is blocked.
type LockedOutError struct {
	RemainingSeconds int
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d seconds", e.RemainingSeconds)
}

// Is makes errors.Is(err, ErrLockedOut) true.
func (e *LockedOutError) Is(target error) bool { return target == ErrLockedOut }

// PermissionError reports that the current session lacks a permission.
type PermissionError struct {
	Permission Permission
	Role       string
}

func (e *PermissionError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("permission %q denied", e.Permission)
	}
	return fmt.Sprintf("permission %q denied for role %q", e.Permission, e.Role)
}

// Is makes errors.Is(err, ErrForbidden) true.
func (e *PermissionError) Is(target error) bool { return target == ErrForbidden }
