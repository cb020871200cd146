// Package behavior runs per-frame game scripts in priority order.
//
// Behaviors may be activated, deactivated or created from inside another
// behavior's update: registrations land in a pending list and join the
// active set at the start of the next Update.
package behavior

import (
	"log/slog"

	"github.com/roach88/proxysync/internal/safelist"
)

// Script is the user code a Behavior drives.
type Script interface {
	// Start runs once, right before the first Update.
	Start()

	// Update runs once per frame while the behavior is active.
	Update(dt float32)
}

// Funcs adapts plain functions to Script. Nil fields are skipped.
type Funcs struct {
	OnStart  func()
	OnUpdate func(dt float32)
}

// Start implements Script.
func (f Funcs) Start() {
	if f.OnStart != nil {
		f.OnStart()
	}
}

// Update implements Script.
func (f Funcs) Update(dt float32) {
	if f.OnUpdate != nil {
		f.OnUpdate(dt)
	}
}

// Behavior is one registered script.
type Behavior struct {
	name     string
	script   Script
	priority int

	active  bool
	added   bool
	started bool

	link safelist.Node[*Behavior]
	mgr  *Manager
}

// Name returns the behavior name.
func (b *Behavior) Name() string { return b.name }

// Priority returns the bucket; lower runs first.
func (b *Behavior) Priority() int { return b.priority }

// Active reports whether the behavior wants updates.
func (b *Behavior) Active() bool { return b.active }

// Started reports whether Start has run.
func (b *Behavior) Started() bool { return b.started }

// Activate requests per-frame updates starting next Update.
func (b *Behavior) Activate() {
	b.active = true
	b.sync()
}

// Deactivate stops updates. Safe to call from inside any Update, including
// the behavior's own.
func (b *Behavior) Deactivate() {
	b.active = false
	b.sync()
}

func (b *Behavior) sync() {
	if b.active == b.added {
		return
	}
	b.added = b.active
	if b.added {
		b.mgr.buckets.Register(&b.link, b.priority)
	} else {
		b.mgr.buckets.Unregister(&b.link)
	}
}

// Manager owns the behavior buckets. Game role only.
type Manager struct {
	buckets *safelist.Buckets[*Behavior]
	logger  *slog.Logger
	frames  uint64
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		buckets: safelist.NewBuckets[*Behavior](),
		logger:  logger,
	}
}

// New creates an inactive behavior in bucket priority.
func (m *Manager) New(name string, script Script, priority int) *Behavior {
	b := &Behavior{
		name:     name,
		script:   script,
		priority: priority,
		mgr:      m,
	}
	b.link.Value = b
	return b
}

// Add creates and activates a behavior.
func (m *Manager) Add(name string, script Script, priority int) *Behavior {
	b := m.New(name, script, priority)
	b.Activate()
	return b
}

// Update integrates pending registrations and updates every active
// behavior, lower priorities first.
func (m *Manager) Update(dt float32) {
	m.frames++
	m.buckets.Update(func(b *Behavior) {
		if !b.started {
			b.started = true
			b.script.Start()
		}
		b.script.Update(dt)
	})
}

// Len returns the active and pending counts.
func (m *Manager) Len() (active, pending int) {
	return m.buckets.Len()
}

// Clear deactivates everything.
func (m *Manager) Clear() {
	m.buckets.Update(func(b *Behavior) {
		b.active = false
		b.added = false
	})
	m.buckets.Clear()
	m.logger.Debug("behaviors cleared", "frames", m.frames)
}
