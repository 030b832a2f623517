package room

import "github.com/avkviring/cheetah-relay/internal/objectid"

// Permission is the access level a member's groups resolve to for a
// given (template, field). Ordered from least to most permissive so
// "least permissive match" is a plain min().
type Permission int

const (
	Deny Permission = iota
	Ro
	Rw
)

type groupRule struct {
	groups     objectid.AccessGroups
	permission Permission
}

type templateRules struct {
	fieldRules      map[uint16][]groupRule
	wholeObjectRule []groupRule
}

type cacheKey struct {
	template uint16
	field    uint16
	groups   objectid.AccessGroups
}

// PermissionManager resolves (template, field, member groups) to a
// Permission, with a cache on the hot path.
type PermissionManager struct {
	templates map[uint16]*templateRules
	cache     map[cacheKey]Permission
}

// NewPermissionManager builds an empty manager; every (template, field)
// defaults to Rw until rules are added.
func NewPermissionManager() *PermissionManager {
	return &PermissionManager{
		templates: make(map[uint16]*templateRules),
		cache:     make(map[cacheKey]Permission),
	}
}

func (pm *PermissionManager) ruleSetFor(template uint16) *templateRules {
	rs, ok := pm.templates[template]
	if !ok {
		rs = &templateRules{fieldRules: make(map[uint16][]groupRule)}
		pm.templates[template] = rs
	}
	return rs
}

// SetFieldRule adds a permission rule scoped to one field of a template.
func (pm *PermissionManager) SetFieldRule(template, field uint16, groups objectid.AccessGroups, perm Permission) {
	rs := pm.ruleSetFor(template)
	rs.fieldRules[field] = append(rs.fieldRules[field], groupRule{groups: groups, permission: perm})
	pm.invalidate(template, field)
}

// SetWholeObjectRule adds a fallback rule applied when no field rule
// matches.
func (pm *PermissionManager) SetWholeObjectRule(template uint16, groups objectid.AccessGroups, perm Permission) {
	rs := pm.ruleSetFor(template)
	rs.wholeObjectRule = append(rs.wholeObjectRule, groupRule{groups: groups, permission: perm})
	// A whole-object rule can change the result for any field of the
	// template, so every cached entry for it is dropped.
	for k := range pm.cache {
		if k.template == template {
			delete(pm.cache, k)
		}
	}
}

func (pm *PermissionManager) invalidate(template, field uint16) {
	for k := range pm.cache {
		if k.template == template && k.field == field {
			delete(pm.cache, k)
		}
	}
}

// Get resolves the permission for memberGroups against (template,
// field) using: super-member bypass, then least-permissive
// overlapping field rule, then least-permissive overlapping
// whole-object rule, then a default of Rw.
func (pm *PermissionManager) Get(template, field uint16, memberGroups objectid.AccessGroups) Permission {
	if memberGroups.IsSuper() {
		return Rw
	}

	key := cacheKey{template: template, field: field, groups: memberGroups}
	if p, ok := pm.cache[key]; ok {
		return p
	}

	perm := pm.resolve(template, field, memberGroups)
	pm.cache[key] = perm
	return perm
}

func (pm *PermissionManager) resolve(template, field uint16, memberGroups objectid.AccessGroups) Permission {
	rs, ok := pm.templates[template]
	if !ok {
		return Rw
	}

	if p, ok := leastPermissiveMatch(rs.fieldRules[field], memberGroups); ok {
		return p
	}
	if p, ok := leastPermissiveMatch(rs.wholeObjectRule, memberGroups); ok {
		return p
	}
	return Rw
}

func leastPermissiveMatch(rules []groupRule, memberGroups objectid.AccessGroups) (Permission, bool) {
	matched := false
	var least Permission
	for _, r := range rules {
		if !r.groups.Intersects(memberGroups) {
			continue
		}
		if !matched || r.permission < least {
			least = r.permission
			matched = true
		}
	}
	return least, matched
}
