package auth

import (
	"errors"
	"slices"
	"testing"

	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/config"
)

func defaultRoleDefs() []config.RoleConfig {
	return []config.RoleConfig{
		{ID: "staff", Name: "Staff", Icon: "👷", PIN: "1234", Permissions: []string{"read", "create", "update", "delete"}},
		{ID: "manager", Name: "Manager", Icon: "👔", PIN: "9999", Permissions: []string{"read", "export"}, ReadOnly: true},
	}
}

func TestNewRoleCatalog_Match(t *testing.T) {
	c, err := NewRoleCatalog(defaultRoleDefs())
	if err != nil {
		t.Fatalf("NewRoleCatalog() error = %v", err)
	}

	tests := []struct {
		pin    string
		wantID string
		wantOK bool
	}{
		{"1234", "staff", true},
		{"9999", "manager", true},
		{"0000", "", false},
		{"", "", false},
		{"12345", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			r, ok := c.Match(tt.pin)
			if ok != tt.wantOK || r.ID != tt.wantID {
				t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tt.pin, r.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestNewRoleCatalog_HashedPIN(t *testing.T) {
	hash, err := HashPIN("5555")
	if err != nil {
		t.Fatalf("HashPIN() error = %v", err)
	}

	defs := append(defaultRoleDefs(), config.RoleConfig{
		ID: "supervisor", PINHash: hash, Permissions: []string{"read", "update"},
	})
	c, err := NewRoleCatalog(defs)
	if err != nil {
		t.Fatalf("NewRoleCatalog() error = %v", err)
	}

	r, ok := c.Match("5555")
	if !ok || r.ID != "supervisor" {
		t.Errorf("Match(5555) = (%q, %v), want supervisor", r.ID, ok)
	}
}

func TestNewRoleCatalog_Errors(t *testing.T) {
	hash1234, err := HashPIN("1234")
	if err != nil {
		t.Fatalf("HashPIN() error = %v", err)
	}

	tests := []struct {
		name    string
		defs    []config.RoleConfig
		wantDup bool
	}{
		{name: "empty", defs: nil},
		{name: "missing id", defs: []config.RoleConfig{{PIN: "1", Permissions: []string{"read"}}}},
		{
			name: "duplicate id",
			defs: []config.RoleConfig{
				{ID: "a", PIN: "1", Permissions: []string{"read"}},
				{ID: "a", PIN: "2", Permissions: []string{"read"}},
			},
		},
		{name: "no pin", defs: []config.RoleConfig{{ID: "a", Permissions: []string{"read"}}}},
		{name: "bad permission", defs: []config.RoleConfig{{ID: "a", PIN: "1", Permissions: []string{"fly"}}}},
		{name: "bad hash", defs: []config.RoleConfig{{ID: "a", PINHash: "nope", Permissions: []string{"read"}}}},
		{
			name: "duplicate plaintext pin",
			defs: []config.RoleConfig{
				{ID: "a", PIN: "1234", Permissions: []string{"read"}},
				{ID: "b", PIN: "1234", Permissions: []string{"read"}},
			},
			wantDup: true,
		},
		{
			name: "plaintext pin collides with hash",
			defs: []config.RoleConfig{
				{ID: "a", PIN: "1234", Permissions: []string{"read"}},
				{ID: "b", PINHash: hash1234, Permissions: []string{"read"}},
			},
			wantDup: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoleCatalog(tt.defs)
			if err == nil {
				t.Fatal("NewRoleCatalog() error = nil, want error")
			}
			if tt.wantDup && !errors.Is(err, ErrDuplicatePIN) {
				t.Errorf("error = %v, want ErrDuplicatePIN", err)
			}
		})
	}
}

func TestRoleCatalog_LookupAndRolesHideCredentials(t *testing.T) {
	c, err := NewRoleCatalog(defaultRoleDefs())
	if err != nil {
		t.Fatalf("NewRoleCatalog() error = %v", err)
	}

	r, ok := c.Lookup("manager")
	if !ok {
		t.Fatal("Lookup(manager) not found")
	}
	if !r.ReadOnly || !slices.Equal(r.Permissions, []Permission{PermRead, PermExport}) {
		t.Errorf("manager role = %+v", r)
	}
	if r.pin != "" || r.pinHash != "" {
		t.Error("Lookup must not expose credentials")
	}

	// Mutating a returned copy must not affect the catalog.
	r.Permissions[0] = PermDelete
	again, _ := c.Lookup("manager")
	if again.Permissions[0] != PermRead {
		t.Error("catalog permissions were mutated through a returned role")
	}

	if _, ok := c.Lookup("ghost"); ok {
		t.Error("Lookup(ghost) should fail")
	}

	roles := c.Roles()
	if len(roles) != 2 || roles[0].ID != "staff" || roles[1].ID != "manager" {
		t.Errorf("Roles() = %+v", roles)
	}
}
