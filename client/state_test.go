package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateRegisterDefaultsLoggedOut(t *testing.T) {
	r := newStateRegister()
	assert.Equal(t, LoggedOut, r.Get())
}

func TestStateRegisterSetGet(t *testing.T) {
	r := newStateRegister()
	r.Set(LoggedIn)
	assert.Equal(t, LoggedIn, r.Get())
}

func TestCompareAndSet(t *testing.T) {
	r := newStateRegister()

	assert.True(t, r.CompareAndSet(LoggedOut, LoggingIn))
	assert.Equal(t, LoggingIn, r.Get())

	// Wrong expectation leaves the state alone.
	assert.False(t, r.CompareAndSet(LoggedOut, LoggedIn))
	assert.Equal(t, LoggingIn, r.Get())
}

func TestCompareAndSetSingleWinner(t *testing.T) {
	r := newStateRegister()

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- r.CompareAndSet(LoggedOut, LoggingIn)
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	assert.Equal(t, 1, won)
}
