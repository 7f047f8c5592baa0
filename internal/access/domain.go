// Package access holds the fixed role to capability table and the HTTP
// middleware that gates routes on it.
package access

import (
	"sort"
	"strings"
)

// Role is the kind of actor attached to a session. The empty role is
// unauthenticated.
type Role string

// Known roles.
const (
	RoleUnauthenticated Role = ""
	RolePassenger       Role = "passenger"
	RoleSuperAdmin      Role = "superadmin"
	RoleStationAdmin    Role = "stationadmin"
	RoleClerk           Role = "clerk"
)

// Capability is an atomic permission checked by handlers.
type Capability string

// Known capabilities.
const (
	ManageRegistration  Capability = "registration.manage"
	IssueManualTokens   Capability = "tokens.issue_manual"
	GenerateTokenList   Capability = "tokens.generate_list"
	ViewReports         Capability = "reports.view"
	ViewAdminActivity   Capability = "activity.view"
	ViewLiveMonitoring  Capability = "monitoring.view"
	ViewCancelledTokens Capability = "tokens.view_cancelled"
)

// AllCapabilities lists every capability in table order.
var AllCapabilities = []Capability{
	ManageRegistration,
	IssueManualTokens,
	GenerateTokenList,
	ViewReports,
	ViewAdminActivity,
	ViewLiveMonitoring,
	ViewCancelledTokens,
}

// AdminRoles lists the roles that sign in through the admin login.
var AdminRoles = []Role{RoleSuperAdmin, RoleStationAdmin, RoleClerk}

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// Has reports membership.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the members in lexical order.
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newSet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// permissionTable is built once and never mutated; CapabilitiesFor hands
// out copies.
var permissionTable = map[Role]CapabilitySet{
	RoleSuperAdmin: newSet(AllCapabilities...),
	RoleStationAdmin: newSet(
		ManageRegistration,
		IssueManualTokens,
		GenerateTokenList,
		ViewReports,
		ViewLiveMonitoring,
	),
	RoleClerk: newSet(
		IssueManualTokens,
		GenerateTokenList,
		ViewLiveMonitoring,
	),
}

// CapabilitiesFor returns the capabilities granted to role. Unknown roles,
// passengers and anonymous callers get an empty set.
func CapabilitiesFor(role Role) CapabilitySet {
	granted := permissionTable[role]
	out := make(CapabilitySet, len(granted))
	for c := range granted {
		out[c] = struct{}{}
	}
	return out
}

// Can reports whether role holds capability c.
func Can(role Role, c Capability) bool {
	return permissionTable[role].Has(c)
}

// ParseRole normalises raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleUnauthenticated, RolePassenger, RoleSuperAdmin, RoleStationAdmin, RoleClerk:
		return role, true
	}
	return RoleUnauthenticated, false
}

// IsAdmin reports whether role signs in through the admin portal.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleSuperAdmin, RoleStationAdmin, RoleClerk:
		return true
	}
	return false
}

// DisplayName is the label shown next to the signed-in admin.
func (r Role) DisplayName() string {
	switch r {
	case RoleSuperAdmin:
		return "Super Admin"
	case RoleStationAdmin:
		return "Station Admin"
	case RoleClerk:
		return "Clerk"
	case RolePassenger:
		return "Passenger"
	}
	return ""
}
