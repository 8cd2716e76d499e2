package client_test

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CherifSy/divide"
	"github.com/CherifSy/divide/client"
	"github.com/CherifSy/divide/storage/memory"
)

var (
	serverKeysOnce sync.Once
	serverKeys     *divide.KeyManager
)

func testServer(t *testing.T) string {
	t.Helper()

	serverKeysOnce.Do(func() {
		km, err := divide.GenerateKeyManager(2048)
		if err != nil {
			panic(err)
		}
		serverKeys = km
	})

	svc := divide.NewService(memory.New(), serverKeys, divide.ConfigObject{
		SigningKey:       "client-test-key",
		TokenTTLHours:    24,
		RecoveryTTLHours: 48,
		BcryptCost:       4,
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	divide.RegisterAuthRoutes(app, divide.WithControllerService(svc))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	return "http://" + ln.Addr().String()
}

func await(t *testing.T, ch <-chan client.AuthResult) client.AuthResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for auth result")
		return client.AuthResult{}
	}
}

func TestSignUpLogsIn(t *testing.T) {
	c := client.New(testServer(t))

	res := await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "s3cret!"))
	require.NoError(t, res.Err)
	require.NotNil(t, res.Record)

	assert.Equal(t, client.LoggedIn, c.State())
	assert.NotNil(t, c.CurrentUser())
	assert.NotEmpty(t, c.RecoveryToken())
	assert.Empty(t, res.Record.Password())
}

func TestLoginRoundTrip(t *testing.T) {
	base := testServer(t)

	first := client.New(base)
	require.NoError(t, await(t, first.SignUp(context.Background(), "pepe", "a@x.com", "s3cret!")).Err)

	second := client.New(base)
	res := await(t, second.Login(context.Background(), "a@x.com", "s3cret!"))
	require.NoError(t, res.Err)
	assert.Equal(t, client.LoggedIn, second.State())
	assert.Equal(t, "a@x.com", second.CurrentUser().Email())
}

func TestLoginFailureRevertsToLoggedOut(t *testing.T) {
	base := testServer(t)

	c := client.New(base)
	require.NoError(t, await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "s3cret!")).Err)
	c.Logout()

	res := await(t, c.Login(context.Background(), "a@x.com", "wrong"))
	require.Error(t, res.Err)

	// Once a result is delivered, the state is settled.
	assert.Equal(t, client.LoggedOut, c.State())
	assert.Nil(t, c.CurrentUser())
}

func TestLoginPublishesEvents(t *testing.T) {
	c := client.New(testServer(t))

	var mu sync.Mutex
	var states []client.LoginState
	c.Subscribe(func(e client.LoginEvent) {
		mu.Lock()
		states = append(states, e.State)
		mu.Unlock()
	})

	require.NoError(t, await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "pw")).Err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, client.LoggedIn, states[len(states)-1])
}

func TestSubscribeReplaysCurrentSession(t *testing.T) {
	c := client.New(testServer(t))
	require.NoError(t, await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "pw")).Err)

	var replayed *client.LoginEvent
	c.Subscribe(func(e client.LoginEvent) {
		if replayed == nil {
			replayed = &e
		}
	})

	require.NotNil(t, replayed)
	assert.Equal(t, client.LoggedIn, replayed.State)
	require.NotNil(t, replayed.Record)
	assert.Equal(t, "a@x.com", replayed.Record.Email())
}

type countingTransport struct {
	inner     http.RoundTripper
	fromCalls atomic.Int64
}

func (ct *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.Contains(req.URL.Path, "/auth/from/") {
		ct.fromCalls.Add(1)
	}
	return ct.inner.RoundTrip(req)
}

func TestStoredAccountLoginGuard(t *testing.T) {
	base := testServer(t)

	counter := &countingTransport{inner: http.DefaultTransport}
	c := client.New(base, client.WithHTTPClient(&http.Client{Transport: counter}))

	require.NoError(t, await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "pw")).Err)
	c.Logout()
	counter.fromCalls.Store(0)

	a := c.LoginStoredAccountAsync(context.Background(), "a@x.com")
	b := c.LoginStoredAccountAsync(context.Background(), "a@x.com")

	resA := await(t, a)
	resB := await(t, b)

	// Exactly one call crossed the network; the other was a no-op.
	winners := 0
	for _, res := range []client.AuthResult{resA, resB} {
		require.NoError(t, res.Err)
		if res.Record != nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, int64(1), counter.fromCalls.Load())
	assert.Equal(t, client.LoggedIn, c.State())
}

func TestStoredAccountLoginUnknownRef(t *testing.T) {
	c := client.New(testServer(t))

	res := await(t, c.LoginStoredAccountAsync(context.Background(), "nobody@x.com"))
	require.Error(t, res.Err)
	assert.Equal(t, client.LoggedOut, c.State())
}

func TestRecoverFromToken(t *testing.T) {
	c := client.New(testServer(t))

	require.NoError(t, await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "pw")).Err)
	recovery := c.RecoveryToken()
	require.NotEmpty(t, recovery)

	c.Logout()

	res := await(t, c.RecoverFromToken(context.Background(), recovery))
	require.NoError(t, res.Err)
	assert.Equal(t, client.LoggedIn, c.State())

	// The redeemed token was rotated away.
	assert.NotEqual(t, recovery, c.RecoveryToken())
	assert.NotEmpty(t, c.RecoveryToken())
}

func TestUserDataRoundTrip(t *testing.T) {
	c := client.New(testServer(t))
	require.NoError(t, await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "pw")).Err)

	res := await(t, c.SaveUserData(context.Background(), map[string]any{"level": "7"}))
	require.NoError(t, res.Err)

	select {
	case data := <-c.FetchUserData(context.Background()):
		require.NoError(t, data.Err)
		assert.Equal(t, "7", data.Data["level"])
	case <-time.After(10 * time.Second):
		t.Fatal("timed out fetching user data")
	}
}

func TestFetchUserDataForOtherOwner(t *testing.T) {
	base := testServer(t)

	other := client.New(base)
	require.NoError(t, await(t, other.SignUp(context.Background(), "pepe", "b@x.com", "pw")).Err)
	require.NoError(t, await(t, other.SaveUserData(context.Background(), map[string]any{"who": "b"})).Err)
	otherID := other.CurrentUser().OwnerID

	c := client.New(base)
	require.NoError(t, await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "pw")).Err)

	select {
	case data := <-c.FetchUserDataFor(context.Background(), otherID):
		require.NoError(t, data.Err)
		assert.Equal(t, "b", data.Data["who"])
	case <-time.After(10 * time.Second):
		t.Fatal("timed out fetching user data")
	}
}

func TestUserDataRequiresLogin(t *testing.T) {
	c := client.New(testServer(t))

	res := await(t, c.SaveUserData(context.Background(), map[string]any{"x": "1"}))
	assert.Error(t, res.Err)
}

func TestPushKeyRegistration(t *testing.T) {
	c := client.New(testServer(t))
	require.NoError(t, await(t, c.SignUp(context.Background(), "pepe", "a@x.com", "pw")).Err)

	require.NoError(t, <-c.RegisterPushKey(context.Background(), "push-123"))
	require.NoError(t, <-c.UnregisterPushKey(context.Background()))
}

func TestLoginAnonymousRegistersThenResumes(t *testing.T) {
	base := testServer(t)

	first := client.New(base)
	res := await(t, first.LoginAnonymous(context.Background(), "device-1"))
	require.NoError(t, res.Err)
	require.NotNil(t, res.Record)
	assert.Equal(t, client.LoggedIn, first.State())
	assert.Contains(t, res.Record.Email(), "@anonymous.local")

	v, ok := res.Record.Get(client.AnonymousKey)
	require.True(t, ok)
	assert.Equal(t, true, v)

	// Same device logs back into the same account.
	second := client.New(base)
	res = await(t, second.LoginAnonymous(context.Background(), "device-1"))
	require.NoError(t, res.Err)
	assert.Equal(t, res.Record.OwnerID, first.CurrentUser().OwnerID)
}

func TestLoginAnonymousGeneratedDevice(t *testing.T) {
	c := client.New(testServer(t))

	res := await(t, c.LoginAnonymous(context.Background(), ""))
	require.NoError(t, res.Err)
	require.NotNil(t, res.Record)
	assert.Equal(t, client.LoggedIn, c.State())
}
