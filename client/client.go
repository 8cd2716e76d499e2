package client

import (
	"context"
	"crypto/rsa"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CherifSy/divide"
)

// AuthResult is the asynchronous outcome of a session operation. A
// result with neither record nor error means the operation was skipped
// because another login was already in flight.
type AuthResult struct {
	Record *divide.Record
	Err    error
}

// UserDataResult is the asynchronous outcome of a user data fetch.
type UserDataResult struct {
	Data map[string]any
	Err  error
}

// Client drives the session lifecycle against a server. Network
// operations never block the caller; each returns a buffered channel
// that delivers exactly one result. Session state transitions publish on
// the login event channel, and every failure reverts to LoggedOut.
type Client struct {
	transport *transport
	state     *stateRegister
	events    *LoginEvents
	accounts  AccountStore
	logger    divide.Logger

	accountTimeout time.Duration

	keyMu     sync.Mutex
	publicKey *rsa.PublicKey

	sessionMu     sync.Mutex
	current       *divide.Record
	recoveryToken string
}

// Option configures a Client during construction.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.transport.http = httpClient
		}
	}
}

// WithAccountStore replaces the default in-memory account store.
func WithAccountStore(store AccountStore) Option {
	return func(c *Client) {
		if store != nil {
			c.accounts = store
		}
	}
}

// WithLogger replaces the default stdout logger.
func WithLogger(logger divide.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAccountTimeout bounds stored credential lookups.
func WithAccountTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.accountTimeout = d
		}
	}
}

// New builds a client against the server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		transport:      newTransport(baseURL, nil),
		state:          newStateRegister(),
		events:         NewLoginEvents(),
		accounts:       NewMemoryAccountStore(),
		logger:         noopLogger{},
		accountTimeout: DefaultAccountTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State returns the current login state.
func (c *Client) State() LoginState {
	return c.state.Get()
}

// CurrentUser returns the record adopted by the last successful login,
// or nil when logged out.
func (c *Client) CurrentUser() *divide.Record {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.current
}

// RecoveryToken returns the most recent out-of-band recovery token.
func (c *Client) RecoveryToken() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.recoveryToken
}

// Subscribe registers a login event listener. The listener immediately
// receives a replay of the last transition.
func (c *Client) Subscribe(listener LoginListener) func() {
	return c.events.Subscribe(listener)
}

// SignUp registers a new account and logs it in. The password is sealed
// against the server public key before it leaves the process.
func (c *Client) SignUp(ctx context.Context, username, email, password string) <-chan AuthResult {
	out := make(chan AuthResult, 1)
	c.state.Set(LoggingIn)

	go func() {
		creds, err := c.sealedCredentials(ctx, username, email, password)
		if err != nil {
			out <- c.fail(err)
			return
		}

		record, recovery, err := c.transport.signUp(ctx, creds)
		if err != nil {
			out <- c.fail(err)
			return
		}

		c.adopt(ctx, record, recovery)
		out <- AuthResult{Record: record}
	}()

	return out
}

// Login authenticates an existing account by email and password.
func (c *Client) Login(ctx context.Context, email, password string) <-chan AuthResult {
	out := make(chan AuthResult, 1)
	c.state.Set(LoggingIn)

	go func() {
		creds, err := c.sealedCredentials(ctx, "", email, password)
		if err != nil {
			out <- c.fail(err)
			return
		}

		record, err := c.transport.login(ctx, creds)
		if err != nil {
			out <- c.fail(err)
			return
		}

		c.adopt(ctx, record, "")
		out <- AuthResult{Record: record}
	}()

	return out
}

// AnonymousKey marks user data bags of device-bound anonymous accounts.
const AnonymousKey = "anonymous_key"

// LoginAnonymous establishes a device-bound session without user-chosen
// credentials: it tries to log the device account in and falls back to
// registering it, tagging the fresh account's user data as anonymous.
// An empty deviceID gets a generated one, producing a throwaway account.
func (c *Client) LoginAnonymous(ctx context.Context, deviceID string) <-chan AuthResult {
	out := make(chan AuthResult, 1)
	c.state.Set(LoggingIn)

	if deviceID == "" {
		deviceID = "anon-" + uuid.NewString()
	}
	email := deviceID + "@anonymous.local"

	go func() {
		creds, err := c.sealedCredentials(ctx, deviceID, email, deviceID)
		if err != nil {
			out <- c.fail(err)
			return
		}

		if record, err := c.transport.login(ctx, creds); err == nil {
			c.adopt(ctx, record, "")
			out <- AuthResult{Record: record}
			return
		}

		record, recovery, err := c.transport.signUp(ctx, creds)
		if err != nil {
			out <- c.fail(err)
			return
		}

		if tagged, err := c.transport.saveUserData(ctx, record.AuthToken(), map[string]any{AnonymousKey: true}); err == nil {
			record = tagged
		}

		c.adopt(ctx, record, recovery)
		out <- AuthResult{Record: record}
	}()

	return out
}

// LoginFromStoredToken resumes a session from a previously saved auth
// token.
func (c *Client) LoginFromStoredToken(ctx context.Context, token string) <-chan AuthResult {
	out := make(chan AuthResult, 1)
	c.state.Set(LoggingIn)

	go func() {
		record, err := c.transport.fromToken(ctx, token)
		if err != nil {
			out <- c.fail(err)
			return
		}

		c.adopt(ctx, record, "")
		out <- AuthResult{Record: record}
	}()

	return out
}

// LoginStoredAccountAsync resumes the account saved under ref. The
// LoggedOut to LoggingIn transition is a guarded check-and-set: a
// concurrent call that observes LoggingIn or LoggedIn delivers an empty
// result and performs no work.
func (c *Client) LoginStoredAccountAsync(ctx context.Context, ref string) <-chan AuthResult {
	out := make(chan AuthResult, 1)

	if !c.state.CompareAndSet(LoggedOut, LoggingIn) {
		out <- AuthResult{}
		return out
	}

	go func() {
		lookupCtx, cancel := context.WithTimeout(ctx, c.accountTimeout)
		token, err := c.accounts.StoredToken(lookupCtx, ref)
		cancel()
		if err != nil {
			out <- c.fail(err)
			return
		}

		record, err := c.transport.fromToken(ctx, token)
		if err != nil {
			out <- c.fail(err)
			return
		}

		c.adopt(ctx, record, "")
		out <- AuthResult{Record: record}
	}()

	return out
}

// RecoverFromToken redeems a one-time recovery token and adopts the
// rotated session.
func (c *Client) RecoverFromToken(ctx context.Context, token string) <-chan AuthResult {
	out := make(chan AuthResult, 1)
	c.state.Set(LoggingIn)

	go func() {
		record, recovery, err := c.transport.recoverFromToken(ctx, token)
		if err != nil {
			out <- c.fail(err)
			return
		}

		c.adopt(ctx, record, recovery)
		out <- AuthResult{Record: record}
	}()

	return out
}

// Logout clears the session credential.
func (c *Client) Logout() {
	c.sessionMu.Lock()
	c.current = nil
	c.recoveryToken = ""
	c.sessionMu.Unlock()

	c.state.Set(LoggedOut)
	c.events.Publish(LoginEvent{State: LoggedOut})
}

// SaveUserData overwrites the logged-in account's user data bag.
func (c *Client) SaveUserData(ctx context.Context, data map[string]any) <-chan AuthResult {
	out := make(chan AuthResult, 1)

	token, err := c.sessionToken()
	if err != nil {
		out <- AuthResult{Err: err}
		return out
	}

	go func() {
		record, err := c.transport.saveUserData(ctx, token, data)
		if err != nil {
			out <- AuthResult{Err: err}
			return
		}

		c.sessionMu.Lock()
		if c.current != nil {
			c.current.ReplaceUserData(record.UserData)
		}
		c.sessionMu.Unlock()

		out <- AuthResult{Record: record}
	}()

	return out
}

// FetchUserData retrieves the logged-in account's user data bag.
func (c *Client) FetchUserData(ctx context.Context) <-chan UserDataResult {
	return c.FetchUserDataFor(ctx, 0)
}

// FetchUserDataFor retrieves another account's user data bag by owner
// id. Zero means the logged-in account itself.
func (c *Client) FetchUserDataFor(ctx context.Context, ownerID int64) <-chan UserDataResult {
	out := make(chan UserDataResult, 1)

	token, err := c.sessionToken()
	if err != nil {
		out <- UserDataResult{Err: err}
		return out
	}

	go func() {
		data, err := c.transport.fetchUserData(ctx, token, ownerID)
		out <- UserDataResult{Data: data, Err: err}
	}()

	return out
}

// RegisterPushKey attaches a push messaging key to the logged-in
// account.
func (c *Client) RegisterPushKey(ctx context.Context, key string) <-chan error {
	out := make(chan error, 1)

	token, err := c.sessionToken()
	if err != nil {
		out <- err
		return out
	}

	go func() {
		out <- c.transport.registerPushKey(ctx, token, key)
	}()

	return out
}

// UnregisterPushKey clears the logged-in account's push messaging key.
func (c *Client) UnregisterPushKey(ctx context.Context) <-chan error {
	out := make(chan error, 1)

	token, err := c.sessionToken()
	if err != nil {
		out <- err
		return out
	}

	go func() {
		out <- c.transport.unregisterPushKey(ctx, token)
	}()

	return out
}

// sealedCredentials builds a credentials record with its password sealed
// against the server public key.
func (c *Client) sealedCredentials(ctx context.Context, username, email, password string) (*divide.Record, error) {
	key, err := c.serverKey(ctx)
	if err != nil {
		return nil, err
	}

	creds := divide.NewCredentials(username, email, password)
	if err := creds.SealPassword(key); err != nil {
		return nil, err
	}

	return creds, nil
}

// serverKey fetches and caches the server public key. Concurrent first
// fetches are duplicate work, not a hazard; the key never changes while
// the process lives.
func (c *Client) serverKey(ctx context.Context) (*rsa.PublicKey, error) {
	c.keyMu.Lock()
	key := c.publicKey
	c.keyMu.Unlock()

	if key != nil {
		return key, nil
	}

	der, err := c.transport.publicKey(ctx)
	if err != nil {
		return nil, err
	}

	key, err = divide.ParsePublicKey(der)
	if err != nil {
		return nil, err
	}

	c.keyMu.Lock()
	c.publicKey = key
	c.keyMu.Unlock()

	return key, nil
}

// adopt installs a freshly returned record as the current session and
// publishes the transition. The state flips before any result delivery,
// so an observer never sees LoggingIn after an operation completes.
func (c *Client) adopt(ctx context.Context, record *divide.Record, recoveryToken string) {
	c.sessionMu.Lock()
	c.current = record
	if recoveryToken != "" {
		c.recoveryToken = recoveryToken
	}
	c.sessionMu.Unlock()

	if token := record.AuthToken(); token != "" && record.Email() != "" {
		if err := c.accounts.SaveToken(ctx, record.Email(), token); err != nil {
			c.logger.Warn("account store: save token failed: %v", err)
		}
	}

	c.state.Set(LoggedIn)
	c.events.Publish(LoginEvent{Record: record, State: LoggedIn})
}

// fail reverts to LoggedOut and wraps the error for delivery.
func (c *Client) fail(err error) AuthResult {
	c.state.Set(LoggedOut)
	c.events.Publish(LoginEvent{State: LoggedOut})
	return AuthResult{Err: err}
}

func (c *Client) sessionToken() (string, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.current == nil || c.current.AuthToken() == "" {
		return "", divide.ErrTokenExpired
	}
	return c.current.AuthToken(), nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
