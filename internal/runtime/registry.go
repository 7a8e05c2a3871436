package runtime

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/internal/event"
)

// Handle is the shared endpoint for talking to a live session worker.
// It is dead once done is closed; a dead handle must be evicted from
// the registry before a replacement worker is registered.
type Handle struct {
	commands chan Envelope
	done     chan struct{}
}

// Alive reports whether the worker behind the handle still runs.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Send submits an envelope to the worker's command queue.
func (h *Handle) Send(ctx context.Context, env Envelope) error {
	select {
	case h.commands <- env:
		return nil
	case <-h.done:
		return apperr.New(apperr.KindConflict, "session worker stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry is the process-wide directory of live session workers and
// their persistent event topics. Worker lifecycle and stream lifecycle
// are independently keyed: the handle map empties when actors die, the
// bus topics stay so reconnecting subscribers never lose the stream.
type Registry struct {
	handles *xsync.MapOf[string, *Handle]
	bus     *event.Bus
}

// NewRegistry creates a registry backed by the given event bus.
func NewRegistry(bus *event.Bus) *Registry {
	return &Registry{
		handles: xsync.NewMapOf[string, *Handle](),
		bus:     bus,
	}
}

// GetOrCreateBus lazily creates the broadcast topic for a session key
// and returns the bus. Idempotent.
func (r *Registry) GetOrCreateBus(sessionKey string) *event.Bus {
	r.bus.EnsureTopic(sessionKey)
	return r.bus
}

// GetHandle returns the live handle for a session key. A handle whose
// worker has stopped is evicted lazily and nil is returned, so callers
// can treat nil as "no live worker, spawn one".
func (r *Registry) GetHandle(sessionKey string) *Handle {
	h, ok := r.handles.Load(sessionKey)
	if !ok {
		return nil
	}
	if !h.Alive() {
		r.handles.Compute(sessionKey, func(cur *Handle, loaded bool) (*Handle, bool) {
			// Delete only if the dead handle is still the one stored.
			return cur, loaded && cur == h
		})
		return nil
	}
	return h
}

// Register installs a handle for a session key, overwriting any stale
// entry.
func (r *Registry) Register(sessionKey string, h *Handle) {
	r.handles.Store(sessionKey, h)
}

// GetOrRegister returns the live handle for a key, or atomically
// installs the one produced by spawn. The spawn callback only runs
// when no live worker is stored under the key.
func (r *Registry) GetOrRegister(sessionKey string, spawn func() *Handle) *Handle {
	for {
		h, _ := r.handles.LoadOrCompute(sessionKey, func() *Handle {
			return spawn()
		})
		if h.Alive() {
			return h
		}
		r.handles.Compute(sessionKey, func(cur *Handle, loaded bool) (*Handle, bool) {
			return cur, loaded && cur == h
		})
	}
}

// Remove drops the handle for a session key. The bus topic stays.
func (r *Registry) Remove(sessionKey string) {
	r.handles.Delete(sessionKey)
}

// Keys returns the session keys with a registered handle.
func (r *Registry) Keys() []string {
	var keys []string
	r.handles.Range(func(key string, _ *Handle) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}
