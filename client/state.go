package client

import "sync"

// LoginState is the client session register.
type LoginState string

const (
	LoggedOut LoginState = "LOGGED_OUT"
	LoggingIn LoginState = "LOGGING_IN"
	LoggedIn  LoginState = "LOGGED_IN"
)

// stateRegister guards the login state behind its own mutex. The guard
// never changes identity, only the value it protects does; locking the
// mutable value itself would let two writers hold different locks.
type stateRegister struct {
	mu    sync.Mutex
	state LoginState
}

func newStateRegister() *stateRegister {
	return &stateRegister{state: LoggedOut}
}

// Get returns the current state.
func (r *stateRegister) Get() LoginState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Set overwrites the current state.
func (r *stateRegister) Set(next LoginState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = next
}

// CompareAndSet transitions from want to next atomically, reporting
// whether the transition happened.
func (r *stateRegister) CompareAndSet(want, next LoginState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != want {
		return false
	}
	r.state = next
	return true
}
