package divide

import (
	"context"
	"strings"
)

// AuthScheme is the authorization scheme authenticated requests carry:
// "Authorization: CUSTOM <token>".
const AuthScheme = "CUSTOM"

// RecoveryTokenHeader is the response header carrying a freshly issued
// one-time recovery token. It travels out-of-band from the record body.
const RecoveryTokenHeader = "1tk"

type contextKey int

const recordContextKey contextKey = iota

// WithRecordContext binds a resolved record to the request context.
func WithRecordContext(ctx context.Context, r *Record) context.Context {
	return context.WithValue(ctx, recordContextKey, r)
}

// RecordFromContext retrieves the record bound by session resolution.
func RecordFromContext(ctx context.Context) (*Record, bool) {
	r, ok := ctx.Value(recordContextKey).(*Record)
	return r, ok
}

// SessionResolver turns inbound authorization headers into identities.
// Resolution never mutates account state.
type SessionResolver struct {
	service *Service
	scheme  string
	logger  Logger
}

// NewSessionResolver builds a resolver over the protocol service, using
// the configured authorization scheme.
func NewSessionResolver(service *Service, config Config) *SessionResolver {
	scheme := AuthScheme
	if config != nil && config.GetAuthScheme() != "" {
		scheme = config.GetAuthScheme()
	}
	return &SessionResolver{
		service: service,
		scheme:  scheme,
		logger:  defLogger{},
	}
}

// WithLogger replaces the default stdout logger.
func (sr *SessionResolver) WithLogger(logger Logger) *SessionResolver {
	if logger != nil {
		sr.logger = logger
	}
	return sr
}

// TokenFromHeader extracts the bearer token from an authorization header
// value. The scheme comparison is case-insensitive.
func (sr *SessionResolver) TokenFromHeader(header string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], sr.scheme) {
		return "", ErrTokenExpired
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrTokenExpired
	}

	return token, nil
}

// Resolve maps an authorization header value to its record and returns a
// context carrying the identity.
func (sr *SessionResolver) Resolve(ctx context.Context, header string) (context.Context, *Record, error) {
	token, err := sr.TokenFromHeader(header)
	if err != nil {
		return ctx, nil, err
	}

	record, err := sr.service.ResolveToken(ctx, token)
	if err != nil {
		sr.logger.Debug("session: token did not resolve: %v", err)
		return ctx, nil, err
	}

	return WithRecordContext(ctx, record), record, nil
}
