package webhooks

import "sync"

// Handler receives lifecycle event notifications. Handlers run synchronously
// on the emitting goroutine and must not block.
type Handler func(event string, payload interface{})

// emitter is an explicit observer registry: subscribe returns an
// unsubscribe function instead of relying on inheritance from an
// event-emitter base type
type emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

func newEmitter() *emitter {
	return &emitter{
		handlers: make(map[string]map[int]Handler),
	}
}

// subscribe registers a handler for an event name and returns its
// unsubscribe function
func (e *emitter) subscribe(event string, handler Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[int]Handler)
	}
	e.handlers[event][id] = handler

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[event], id)
	}
}

// emit calls every handler registered for the event. The handler set is
// snapshotted under the lock; handlers run without it so they may
// subscribe or unsubscribe safely.
func (e *emitter) emit(event string, payload interface{}) {
	e.mu.RLock()
	snapshot := make([]Handler, 0, len(e.handlers[event]))
	for _, handler := range e.handlers[event] {
		snapshot = append(snapshot, handler)
	}
	e.mu.RUnlock()

	for _, handler := range snapshot {
		handler(event, payload)
	}
}
