package client

import (
	"sync"

	"github.com/CherifSy/divide"
)

// LoginEvent is the snapshot delivered on every session transition.
type LoginEvent struct {
	Record *divide.Record
	State  LoginState
}

// LoginListener receives session transitions.
type LoginListener func(LoginEvent)

// LoginEvents is a single-process publish point. A new subscriber
// immediately receives a replay of the last published event, then every
// subsequent event in publish order. No lock is held while a listener
// runs, so a listener may subscribe, unsubscribe, or trigger another
// publish from inside its callback.
type LoginEvents struct {
	mu        sync.Mutex
	nextID    int
	order     []int
	listeners map[int]LoginListener
	last      *LoginEvent
}

// NewLoginEvents returns an empty channel with no history.
func NewLoginEvents() *LoginEvents {
	return &LoginEvents{listeners: map[int]LoginListener{}}
}

// Subscribe registers a listener and replays the last known event to it
// before any future event. The returned function unsubscribes; calling
// it more than once is harmless.
func (e *LoginEvents) Subscribe(listener LoginListener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = listener
	e.order = append(e.order, id)
	replay := e.last
	e.mu.Unlock()

	if replay != nil {
		listener(*replay)
	}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.listeners[id]; !ok {
			return
		}
		delete(e.listeners, id)
		for i, v := range e.order {
			if v == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
}

// Publish records the event for replay and delivers it to every
// subscriber in registration order. The subscriber set is snapshotted
// up front; listeners added or removed mid-delivery take effect from
// the next publish.
func (e *LoginEvents) Publish(event LoginEvent) {
	e.mu.Lock()
	e.last = &event
	snapshot := make([]LoginListener, 0, len(e.order))
	for _, id := range e.order {
		if listener, ok := e.listeners[id]; ok {
			snapshot = append(snapshot, listener)
		}
	}
	e.mu.Unlock()

	for _, listener := range snapshot {
		listener(event)
	}
}
