package authz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DecisionObserver receives the outcome of every authorization decision.
// Implemented by the observability package; nil disables recording.
type DecisionObserver interface {
	ObserveDecision(op string, granted bool)
}

// EngineConfig carries optional collaborators for the decision engine.
type EngineConfig struct {
	// Scopes overrides the scope rule; defaults to TenantEqualityScope.
	Scopes ScopeResolver
	// Observer records decision outcomes.
	Observer DecisionObserver
}

// Engine answers authorization questions. It is stateless between calls:
// every decision is a pure function of the directory at query time, so there
// is nothing to invalidate when roles or permissions change.
//
// All decision methods fail closed. A false return is the expected outcome
// for "not authorized" and is never an error; directory failures surface as
// (false, err) so callers can distinguish denial from infrastructure trouble.
type Engine struct {
	dir      Directory
	resolver *Resolver
	scopes   ScopeResolver
	observer DecisionObserver
	logger   *slog.Logger
}

// NewEngine constructs the decision engine over a directory.
func NewEngine(dir Directory, logger *slog.Logger, cfg EngineConfig) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	scopes := cfg.Scopes
	if scopes == nil {
		scopes = TenantEqualityScope{}
	}
	return &Engine{
		dir:      dir,
		resolver: NewResolver(dir),
		scopes:   scopes,
		observer: cfg.Observer,
		logger:   logger,
	}
}

// HasPermission reports whether the user holds the permission, validated
// against scopeID when the permission requires scoping. A nil scopeID skips
// scope validation entirely.
func (e *Engine) HasPermission(ctx context.Context, userID uuid.UUID, code Code, scopeID *uuid.UUID) (bool, error) {
	granted, err := e.hasPermission(ctx, userID, code, scopeID)
	e.observe("has_permission", granted)
	return granted, err
}

func (e *Engine) hasPermission(ctx context.Context, userID uuid.UUID, code Code, scopeID *uuid.UUID) (bool, error) {
	if userID == uuid.Nil || code == "" {
		return false, nil
	}

	grants, err := e.resolver.grants(ctx, userID)
	if err != nil {
		return false, err
	}
	if grants == nil {
		return false, nil
	}

	set := EffectiveSet(grants)
	if set.Has(CodeSuperAdmin) {
		return true, nil
	}
	if !set.Has(code) {
		return false, nil
	}
	if scopeID != nil {
		return e.validateScope(ctx, grants, code, *scopeID), nil
	}
	return true, nil
}

// HasAnyPermission reports whether the user holds at least one of the codes,
// each subject to scope validation when scopeID is non-nil. The empty code
// set is never satisfied.
func (e *Engine) HasAnyPermission(ctx context.Context, userID uuid.UUID, codes []Code, scopeID *uuid.UUID) (bool, error) {
	granted, err := e.hasAnyPermission(ctx, userID, codes, scopeID)
	e.observe("has_any_permission", granted)
	return granted, err
}

func (e *Engine) hasAnyPermission(ctx context.Context, userID uuid.UUID, codes []Code, scopeID *uuid.UUID) (bool, error) {
	if userID == uuid.Nil || len(codes) == 0 {
		return false, nil
	}

	grants, err := e.resolver.grants(ctx, userID)
	if err != nil {
		return false, err
	}
	if grants == nil {
		return false, nil
	}

	set := EffectiveSet(grants)
	if set.Has(CodeSuperAdmin) {
		return true, nil
	}
	for _, code := range codes {
		if !set.Has(code) {
			continue
		}
		if scopeID == nil || e.validateScope(ctx, grants, code, *scopeID) {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether the user holds every code, each subject
// to scope validation when scopeID is non-nil. An empty code set is vacuously
// satisfied.
func (e *Engine) HasAllPermissions(ctx context.Context, userID uuid.UUID, codes []Code, scopeID *uuid.UUID) (bool, error) {
	if len(codes) == 0 {
		e.observe("has_all_permissions", true)
		return true, nil
	}
	for _, code := range codes {
		granted, err := e.hasPermission(ctx, userID, code, scopeID)
		if err != nil {
			return false, err
		}
		if !granted {
			e.observe("has_all_permissions", false)
			return false, nil
		}
	}
	e.observe("has_all_permissions", true)
	return true, nil
}

// GetAllUserPermissions returns the user's effective permission set. Missing
// and inactive users yield the empty set.
func (e *Engine) GetAllUserPermissions(ctx context.Context, userID uuid.UUID) (Set, error) {
	return e.resolver.Resolve(ctx, userID)
}

// CanAccessTenant reports whether the user may operate inside the tenant.
// Unlike scope validation, a global user (nil tenant) does NOT pass here
// without SUPER_ADMIN: this check answers "is this your tenant", not "are
// you scope-exempt". The asymmetry is deliberate; see DESIGN.md.
func (e *Engine) CanAccessTenant(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	granted, err := e.canAccessTenant(ctx, userID, tenantID)
	e.observe("can_access_tenant", granted)
	return granted, err
}

func (e *Engine) canAccessTenant(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	if userID == uuid.Nil || tenantID == uuid.Nil {
		return false, nil
	}

	grants, err := e.resolver.grants(ctx, userID)
	if err != nil {
		return false, err
	}
	if grants == nil {
		return false, nil
	}
	if EffectiveSet(grants).Has(CodeSuperAdmin) {
		return true, nil
	}
	return grants.TenantID != nil && *grants.TenantID == tenantID, nil
}

// CanGrantPermission reports whether the grantor may attach the permission
// within the target tenant. SUPER_ADMIN grants anything; everyone else must
// hold the permission themselves, and SUPER_ADMIN itself is never grantable
// through the generic path.
func (e *Engine) CanGrantPermission(ctx context.Context, grantorID uuid.UUID, code Code, targetTenantID *uuid.UUID) (bool, error) {
	granted, err := e.canGrantPermission(ctx, grantorID, code, targetTenantID)
	e.observe("can_grant_permission", granted)
	return granted, err
}

func (e *Engine) canGrantPermission(ctx context.Context, grantorID uuid.UUID, code Code, targetTenantID *uuid.UUID) (bool, error) {
	super, err := e.hasPermission(ctx, grantorID, CodeSuperAdmin, nil)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}

	has, err := e.hasPermission(ctx, grantorID, code, targetTenantID)
	if err != nil || !has {
		return false, err
	}

	// Redundant with the bypass above, but kept as an explicit invariant:
	// SUPER_ADMIN never flows through the generic grant path.
	if code == CodeSuperAdmin {
		return e.hasPermission(ctx, grantorID, CodeSuperAdmin, nil)
	}
	return true, nil
}

// CanManageUser reports whether the manager may administer the target user.
// The SUPER_ADMIN bypass is evaluated before the self-management block, so a
// super admin may manage their own account through this path.
func (e *Engine) CanManageUser(ctx context.Context, managerID, targetUserID uuid.UUID) (bool, error) {
	granted, err := e.canManageUser(ctx, managerID, targetUserID)
	e.observe("can_manage_user", granted)
	return granted, err
}

func (e *Engine) canManageUser(ctx context.Context, managerID, targetUserID uuid.UUID) (bool, error) {
	if managerID == uuid.Nil || targetUserID == uuid.Nil {
		return false, nil
	}

	super, err := e.hasPermission(ctx, managerID, CodeSuperAdmin, nil)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}

	if managerID == targetUserID {
		return false, nil
	}

	canUpdate, err := e.hasPermission(ctx, managerID, CodeUserUpdate, nil)
	if err != nil || !canUpdate {
		return false, err
	}

	var manager, target *UserGrants
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		manager, err = e.resolver.grants(gctx, managerID)
		return err
	})
	g.Go(func() error {
		var err error
		target, err = e.resolver.grants(gctx, targetUserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	if manager == nil || target == nil {
		return false, nil
	}

	return manager.TenantID != nil && target.TenantID != nil &&
		*manager.TenantID == *target.TenantID, nil
}

func (e *Engine) observe(op string, granted bool) {
	if e.observer != nil {
		e.observer.ObserveDecision(op, granted)
	}
}
