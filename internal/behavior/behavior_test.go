package behavior

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *Manager {
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestManager_StartOnceThenUpdate(t *testing.T) {
	m := newManager()

	var calls []string
	m.Add("b", Funcs{
		OnStart:  func() { calls = append(calls, "start") },
		OnUpdate: func(dt float32) { calls = append(calls, "update") },
	}, 0)

	m.Update(0.016)
	m.Update(0.016)
	assert.Equal(t, []string{"start", "update", "update"}, calls)
}

func TestManager_PriorityOrder(t *testing.T) {
	m := newManager()

	var order []string
	add := func(name string, priority int) {
		m.Add(name, Funcs{OnUpdate: func(float32) { order = append(order, name) }}, priority)
	}
	add("late", 5)
	add("early", -1)
	add("middle", 0)
	add("middle2", 0)

	m.Update(0)
	assert.Equal(t, []string{"early", "middle", "middle2", "late"}, order)
}

func TestManager_AddDuringUpdateDeferred(t *testing.T) {
	m := newManager()

	var order []string
	var spawned *Behavior
	m.Add("spawner", Funcs{OnUpdate: func(float32) {
		order = append(order, "spawner")
		if spawned == nil {
			spawned = m.Add("child", Funcs{OnUpdate: func(float32) { order = append(order, "child") }}, 0)
		}
	}}, 0)

	m.Update(0)
	assert.Equal(t, []string{"spawner"}, order, "child waits for the next frame")
	_, pending := m.Len()
	assert.Equal(t, 1, pending)

	order = nil
	m.Update(0)
	assert.Equal(t, []string{"spawner", "child"}, order)
}

func TestManager_DeactivateSelfDuringUpdate(t *testing.T) {
	m := newManager()

	var self *Behavior
	count := 0
	self = m.Add("once", Funcs{OnUpdate: func(float32) {
		count++
		self.Deactivate()
	}}, 0)
	after := 0
	m.Add("after", Funcs{OnUpdate: func(float32) { after++ }}, 0)

	m.Update(0)
	m.Update(0)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, after, "iteration continues past a self-removal")
	assert.False(t, self.Active())
}

func TestManager_DeactivateNextDuringUpdate(t *testing.T) {
	m := newManager()

	var ran []string
	var b *Behavior
	m.Add("a", Funcs{OnUpdate: func(float32) {
		ran = append(ran, "a")
		b.Deactivate()
	}}, 0)
	b = m.Add("b", Funcs{OnUpdate: func(float32) { ran = append(ran, "b") }}, 0)
	m.Add("c", Funcs{OnUpdate: func(float32) { ran = append(ran, "c") }}, 0)

	m.Update(0)
	assert.Equal(t, []string{"a", "c"}, ran, "a deactivated behavior is skipped and later ones still run")
	assert.False(t, b.Active())
}

func TestManager_ReactivateDoesNotRestart(t *testing.T) {
	m := newManager()

	starts := 0
	b := m.Add("b", Funcs{OnStart: func() { starts++ }}, 0)
	m.Update(0)
	b.Deactivate()
	b.Activate()
	b.Activate()
	m.Update(0)

	assert.Equal(t, 1, starts)
	assert.True(t, b.Started())
	active, pending := m.Len()
	assert.Equal(t, 1, active)
	assert.Equal(t, 0, pending)
}

func TestManager_Clear(t *testing.T) {
	m := newManager()
	b := m.Add("b", Funcs{}, 0)
	m.Update(0)
	m.Add("late", Funcs{}, 1)

	m.Clear()
	active, pending := m.Len()
	assert.Equal(t, 0, active)
	assert.Equal(t, 0, pending)
	require.False(t, b.Active())
}
