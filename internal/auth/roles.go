package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/config"
)

// Role is an immutable PIN-addressable capability bundle.
type Role struct {
	ID          string
	Name        string
	Icon        string
	Description string
	Permissions []Permission

	// ReadOnly marks the role as designated read-only regardless of its
	// permission set.
	ReadOnly bool

	pin     string
	pinHash string
}

// RoleCatalog maps PINs to roles. It is built once at startup and never
// changes afterwards, so it is safe for concurrent use.
type RoleCatalog struct {
	roles []Role
	byID  map[string]int
}

// NewRoleCatalog validates role definitions and builds a catalog.
//
// Role IDs must be unique. Every PIN must resolve to exactly one role:
// a duplicated plaintext PIN, or a plaintext PIN that also verifies
// against another role's hash, returns ErrDuplicatePIN.
func NewRoleCatalog(defs []config.RoleConfig) (*RoleCatalog, error) {
	if len(defs) == 0 {
		return nil, errors.New("role catalog: no roles defined")
	}

	c := &RoleCatalog{
		roles: make([]Role, 0, len(defs)),
		byID:  make(map[string]int, len(defs)),
	}

	for _, d := range defs {
		if d.ID == "" {
			return nil, errors.New("role catalog: role id is required")
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("role catalog: duplicate role id %q", d.ID)
		}
		if (d.PIN == "") == (d.PINHash == "") {
			return nil, fmt.Errorf("role catalog: role %q needs exactly one of pin or pin_hash", d.ID)
		}
		if d.PINHash != "" {
			if _, err := parsePINHash(d.PINHash); err != nil {
				return nil, fmt.Errorf("role catalog: role %q: %w", d.ID, err)
			}
		}

		perms := make([]Permission, 0, len(d.Permissions))
		for _, s := range d.Permissions {
			p, err := ParsePermission(s)
			if err != nil {
				return nil, fmt.Errorf("role catalog: role %q: %w", d.ID, err)
			}
			perms = append(perms, p)
		}

		c.byID[d.ID] = len(c.roles)
		c.roles = append(c.roles, Role{
			ID:          d.ID,
			Name:        d.Name,
			Icon:        d.Icon,
			Description: d.Description,
			Permissions: perms,
			ReadOnly:    d.ReadOnly,
			pin:         d.PIN,
			pinHash:     d.PINHash,
		})
	}

	if err := c.checkUniquePINs(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *RoleCatalog) checkUniquePINs() error {
	for i, a := range c.roles {
		if a.pin == "" {
			continue
		}
		for j, b := range c.roles {
			if i == j {
				continue
			}
			if b.matches(a.pin) {
				return fmt.Errorf("%w: roles %q and %q", ErrDuplicatePIN, a.ID, b.ID)
			}
		}
	}
	return nil
}

func (r *Role) matches(pin string) bool {
	if r.pinHash != "" {
		ok, err := VerifyPIN(pin, r.pinHash)
		return err == nil && ok
	}
	return subtle.ConstantTimeCompare([]byte(r.pin), []byte(pin)) == 1
}

// Match returns the role whose PIN equals pin.
func (c *RoleCatalog) Match(pin string) (Role, bool) {
	if pin == "" {
		return Role{}, false
	}
	for i := range c.roles {
		if c.roles[i].matches(pin) {
			return c.roles[i].public(), true
		}
	}
	return Role{}, false
}

// Lookup returns the role with the given ID.
func (c *RoleCatalog) Lookup(id string) (Role, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Role{}, false
	}
	return c.roles[i].public(), true
}

// Roles returns every role in configuration order, without credentials.
func (c *RoleCatalog) Roles() []Role {
	out := make([]Role, len(c.roles))
	for i := range c.roles {
		out[i] = c.roles[i].public()
	}
	return out
}

// public returns a copy with credentials stripped and permissions cloned.
func (r *Role) public() Role {
	cp := *r
	cp.pin, cp.pinHash = "", ""
	cp.Permissions = append([]Permission(nil), r.Permissions...)
	return cp
}
