package storage

import (
	"sync"

	"github.com/owltrackers/extension/pkg/core"
)

type listener[T any] struct {
	id int
	fn func(T)
}

// listeners is an ordered, concurrency-safe set of callbacks
type listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	list   []listener[T]
}

func (l *listeners[T]) add(fn func(T)) Unsubscribe {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.list = append(l.list, listener[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners[T]) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ln := range l.list {
		if ln.id == id {
			l.list = append(l.list[:i:i], l.list[i+1:]...)
			return
		}
	}
}

// emit calls every listener in registration order, outside the lock so
// callbacks may subscribe, unsubscribe or call back into the backend.
func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	snapshot := append([]listener[T](nil), l.list...)
	l.mu.Unlock()
	for _, ln := range snapshot {
		ln.fn(v)
	}
}

func (l *listeners[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

// Hub implements the subscription half of Backend. Backends embed it and
// call the Emit methods after their state changes.
type Hub struct {
	ready listeners[bool]
	role  listeners[core.Role]
	meta  listeners[core.Metadata]
	items listeners[[]core.Token]
}

func (h *Hub) OnSceneReadyChange(fn func(bool)) Unsubscribe             { return h.ready.add(fn) }
func (h *Hub) OnRoleChange(fn func(core.Role)) Unsubscribe              { return h.role.add(fn) }
func (h *Hub) OnSceneMetadataChange(fn func(core.Metadata)) Unsubscribe { return h.meta.add(fn) }
func (h *Hub) OnItemsChange(fn func([]core.Token)) Unsubscribe          { return h.items.add(fn) }

func (h *Hub) EmitSceneReady(ready bool)         { h.ready.emit(ready) }
func (h *Hub) EmitRole(role core.Role)           { h.role.emit(role) }
func (h *Hub) EmitSceneMetadata(m core.Metadata) { h.meta.emit(m) }
func (h *Hub) EmitItems(tokens []core.Token)     { h.items.emit(tokens) }

// ListenerCount returns the number of live subscriptions across all events
func (h *Hub) ListenerCount() int {
	return h.ready.len() + h.role.len() + h.meta.len() + h.items.len()
}
