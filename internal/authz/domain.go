// Package authz implements permission resolution and authorization decisions
// for the fleet platform: effective permission sets derived from role
// membership, tenant scoping, and privilege-escalation guards.
package authz

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Code identifies an atomic capability. Codes are upper-cased on the way in
// so lookups never depend on caller casing.
type Code string

// The closed set of permission codes known to the platform. CodeSuperAdmin is
// the distinguished sentinel: its presence in an effective set short-circuits
// every other check, and it can only be granted by a holder.
const (
	CodeSuperAdmin Code = "SUPER_ADMIN"

	CodeUserCreate Code = "USER_CREATE"
	CodeUserRead   Code = "USER_READ"
	CodeUserUpdate Code = "USER_UPDATE"
	CodeUserDelete Code = "USER_DELETE"
	CodeRoleAssign Code = "ROLE_ASSIGN"

	CodeRoleCreate Code = "ROLE_CREATE"
	CodeRoleRead   Code = "ROLE_READ"
	CodeRoleUpdate Code = "ROLE_UPDATE"
	CodeRoleDelete Code = "ROLE_DELETE"

	CodePermissionRead Code = "PERMISSION_READ"

	CodeDeviceRegister Code = "DEVICE_REGISTER"
	CodeDeviceRead     Code = "DEVICE_READ"
	CodeDeviceUpdate   Code = "DEVICE_UPDATE"
	CodeDeviceDelete   Code = "DEVICE_DELETE"
	CodeDeviceAssign   Code = "DEVICE_ASSIGN"

	CodeVehicleCreate Code = "VEHICLE_CREATE"
	CodeVehicleRead   Code = "VEHICLE_READ"
	CodeVehicleUpdate Code = "VEHICLE_UPDATE"
	CodeVehicleDelete Code = "VEHICLE_DELETE"
	CodeVehicleAssign Code = "VEHICLE_ASSIGN"

	CodeViewLocationLive Code = "VIEW_LOCATION_LIVE"
	CodeAlertRead        Code = "ALERT_READ"
)

// NormalizeCode canonicalizes a permission code.
func NormalizeCode(raw string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(raw)))
}

// RoleScope classifies the boundary a role applies to.
type RoleScope string

// Role scopes. A TENANT role must carry a tenant id; a GLOBAL role must not.
const (
	ScopeGlobal   RoleScope = "GLOBAL"
	ScopeTenant   RoleScope = "TENANT"
	ScopeFleet    RoleScope = "FLEET"
	ScopeRegional RoleScope = "REGIONAL"
)

// Permission is a capability record as stored in the directory.
type Permission struct {
	ID            uuid.UUID
	Code          Code
	Name          string
	Category      string
	Active        bool
	RequiresScope bool
}

// Role bundles permissions. TenantID is nil for GLOBAL roles.
type Role struct {
	ID          uuid.UUID
	Name        string
	Active      bool
	TenantID    *uuid.UUID
	Scope       RoleScope
	Permissions []Permission
}

// CarriesSuperAdmin reports whether any permission on the role is the
// SUPER_ADMIN sentinel, regardless of active flags. Used by the escalation
// guard: an inactive SUPER_ADMIN grant is still not assignable by a
// non-super-admin actor.
func (r Role) CarriesSuperAdmin() bool {
	for _, p := range r.Permissions {
		if p.Code == CodeSuperAdmin {
			return true
		}
	}
	return false
}

// UserGrants is the single-fetch read model for a user: identity plus every
// role and permission reachable from it. TenantID is nil for global users.
type UserGrants struct {
	ID       uuid.UUID
	TenantID *uuid.UUID
	Active   bool
	Roles    []Role
}

// Set is an effective permission set: the union of codes of active
// permissions belonging to active roles. Recomputed on every check.
type Set map[Code]struct{}

// Has reports membership.
func (s Set) Has(code Code) bool {
	_, ok := s[code]
	return ok
}

// Add inserts a code.
func (s Set) Add(code Code) {
	s[code] = struct{}{}
}

// Codes returns the members sorted for stable output.
func (s Set) Codes() []Code {
	codes := make([]Code, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
