package room

import (
	"testing"

	"github.com/avkviring/cheetah-relay/internal/objectid"
)

func TestPermissionDefaultsToRw(t *testing.T) {
	pm := NewPermissionManager()
	if got := pm.Get(1, 1, 0b1); got != Rw {
		t.Errorf("default permission = %v, want Rw", got)
	}
}

func TestPermissionSuperMemberBypasses(t *testing.T) {
	pm := NewPermissionManager()
	pm.SetFieldRule(1, 1, 0b1, Deny)
	if got := pm.Get(1, 1, objectid.SuperBit); got != Rw {
		t.Errorf("super-member permission = %v, want Rw", got)
	}
}

func TestPermissionLeastPermissiveFieldRuleWins(t *testing.T) {
	pm := NewPermissionManager()
	pm.SetFieldRule(1, 1, 0b01, Rw)
	pm.SetFieldRule(1, 1, 0b10, Deny)

	// a member in both groups 0b01 and 0b10 should get the least
	// permissive of the two overlapping rules.
	if got := pm.Get(1, 1, 0b11); got != Deny {
		t.Errorf("permission = %v, want Deny", got)
	}
}

func TestPermissionFallsBackToWholeObjectRule(t *testing.T) {
	pm := NewPermissionManager()
	pm.SetWholeObjectRule(1, 0b1, Ro)

	if got := pm.Get(1, 99, 0b1); got != Ro {
		t.Errorf("permission = %v, want Ro", got)
	}
}

func TestPermissionNoMatchingGroupDefaultsToRw(t *testing.T) {
	pm := NewPermissionManager()
	pm.SetFieldRule(1, 1, 0b01, Deny)

	if got := pm.Get(1, 1, 0b10); got != Rw {
		t.Errorf("permission = %v, want Rw (no overlapping rule)", got)
	}
}

func TestPermissionCacheInvalidatesOnNewRule(t *testing.T) {
	pm := NewPermissionManager()
	if got := pm.Get(1, 1, 0b1); got != Rw {
		t.Fatalf("precondition: permission = %v, want Rw", got)
	}
	pm.SetFieldRule(1, 1, 0b1, Deny)
	if got := pm.Get(1, 1, 0b1); got != Deny {
		t.Errorf("permission after rule added = %v, want Deny (cache should invalidate)", got)
	}
}
