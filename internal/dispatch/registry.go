package dispatch

import (
	"log/slog"
	"sync"
)

// Registry maps each Role to the goroutine currently acting as it and to the
// delegate that accepts tasks for it.
//
// A Registry is an explicit context object: construct one per session and
// hand it to every component that needs to address a role. There is no
// package-level registry.
//
// Thread-safety model:
//   - SetRoleThread / ReleaseRoleThread / Bind: any goroutine, lock-guarded
//   - RoleThread / IsCurrent / Submit: any goroutine, read-locked
//
// INVARIANTS:
//   - A role has at most one bound goroutine per session
//   - Submit never runs the task inline, even when called from the target role
type Registry struct {
	mu         sync.RWMutex
	threads    [roleCount]ThreadID
	submitters [roleCount]Submitter

	strict bool
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used to report misuse.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStrict makes every detected misuse panic instead of being returned.
// Intended for debug builds and tests.
func WithStrict(strict bool) RegistryOption {
	return func(r *Registry) {
		r.strict = strict
	}
}

// NewRegistry creates a Registry with no roles bound.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Logger returns the registry logger. Components that share a registry log
// through it unless given their own.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// Strict reports whether misuse panics.
func (r *Registry) Strict() bool {
	return r.strict
}

// SetRoleThread binds role to the goroutine id. Binding a role that is
// already bound to a different goroutine is misuse; rebinding the same
// goroutine is a no-op.
func (r *Registry) SetRoleThread(role Role, id ThreadID) error {
	if !role.valid() {
		return r.Misuse(NewMisuseError(ErrCodeWrongRole, role, "unknown role"))
	}

	r.mu.Lock()
	cur := r.threads[role]
	if cur != 0 && cur != id {
		r.mu.Unlock()
		return r.Misuse(NewMisuseError(ErrCodeRoleAlreadyBound, role,
			"role bound to goroutine %d, cannot bind %d", cur, id))
	}
	r.threads[role] = id
	r.mu.Unlock()

	r.logger.Debug("role bound", "role", role, "goroutine", id)
	return nil
}

// BindCurrent binds role to the calling goroutine.
func (r *Registry) BindCurrent(role Role) error {
	return r.SetRoleThread(role, CurrentThread())
}

// ReleaseRoleThread ends the role's session so a later SetRoleThread may
// bind a new goroutine.
func (r *Registry) ReleaseRoleThread(role Role) {
	if !role.valid() {
		return
	}
	r.mu.Lock()
	r.threads[role] = 0
	r.mu.Unlock()

	r.logger.Debug("role released", "role", role)
}

// RoleThread returns the goroutine bound to role, or 0 if unbound.
func (r *Registry) RoleThread(role Role) ThreadID {
	if !role.valid() {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threads[role]
}

// IsCurrent reports whether the calling goroutine is the one bound to role.
func (r *Registry) IsCurrent(role Role) bool {
	id := r.RoleThread(role)
	return id != 0 && id == CurrentThread()
}

// CurrentRole returns the role bound to the calling goroutine, or RoleNone.
func (r *Registry) CurrentRole() Role {
	me := CurrentThread()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range Roles {
		if r.threads[role] == me {
			return role
		}
	}
	return RoleNone
}

// Bind installs the submission delegate for role, replacing any previous
// one. A nil submitter unbinds the role.
func (r *Registry) Bind(role Role, s Submitter) {
	if !role.valid() {
		return
	}
	r.mu.Lock()
	r.submitters[role] = s
	r.mu.Unlock()
}

// Submit hands task to the role's delegate for asynchronous execution.
//
// The task is never executed inline. Tasks submitted by one goroutine to one
// role run in submission order; no ordering holds across roles.
func (r *Registry) Submit(role Role, task Task) error {
	if task == nil {
		return nil
	}
	if !role.valid() {
		return r.Misuse(NewMisuseError(ErrCodeWrongRole, role, "unknown role"))
	}

	r.mu.RLock()
	s := r.submitters[role]
	r.mu.RUnlock()

	if s == nil {
		return r.Misuse(NewMisuseError(ErrCodeNoSubmitter, role, "no submitter bound"))
	}
	return s(task)
}

// Require returns a WRONG_ROLE misuse when the caller is not the goroutine
// bound to role. op names the guarded operation in the error.
func (r *Registry) Require(role Role, op string) error {
	if r.IsCurrent(role) {
		return nil
	}
	return r.Misuse(NewMisuseError(ErrCodeWrongRole, role,
		"%s called from goroutine %d", op, CurrentThread()))
}

// Misuse logs err and either panics with it (strict) or returns it.
func (r *Registry) Misuse(err *MisuseError) error {
	r.logger.Error("dispatch misuse",
		"code", err.Code,
		"role", err.Role,
		"error", err.Message,
	)
	if r.strict {
		panic(err)
	}
	return err
}
