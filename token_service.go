package divide

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthToken is the decoded form of a bearer token: who it belongs to and
// when it stops working. Expiry is checked explicitly via IsExpired, not
// during parsing, so callers control the clock.
type AuthToken struct {
	OwnerID   int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the token is past its expiry at the given
// instant. A token issued with a zero ttl expires the moment it is cut.
func (t AuthToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type tokenClaims struct {
	jwt.RegisteredClaims
}

// TokenService encodes and decodes opaque, time-bounded bearer tokens
// under a symmetric key. Tokens are HMAC-SHA256 signed, so tampering is
// detectable; an unsigned or foreign-key token fails to parse.
type TokenService struct {
	signingKey []byte
	logger     Logger
}

// NewTokenService returns a codec signing under the given symmetric key.
func NewTokenService(signingKey []byte, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{signingKey: signingKey, logger: logger}
}

// Issue binds the owner id and an absolute expiry of now+ttl into an
// opaque signed string. Every token carries a unique id, so two tokens
// cut for the same owner in the same second are still distinct strings;
// rotating a token always invalidates the previous one.
func (ts *TokenService) Issue(ownerID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(ownerID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		ts.logger.Error("token issue: signing failed: %v", err)
		return "", ErrCrypto
	}

	return signed, nil
}

// Parse decodes and verifies a token string. Expired tokens still parse;
// callers decide what expiry means for them (the session resolver treats
// it as Unauthorized). Undecodable input returns ErrTokenMalformed.
func (ts *TokenService) Parse(raw string) (AuthToken, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return ts.signingKey, nil
	}, jwt.WithoutClaimsValidation())

	if err != nil || !token.Valid {
		return AuthToken{}, ErrTokenMalformed
	}

	ownerID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return AuthToken{}, ErrTokenMalformed
	}

	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return AuthToken{}, ErrTokenMalformed
	}

	return AuthToken{
		OwnerID:   ownerID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Expired reports whether the raw token is unusable at the given instant.
// Any parse failure counts as expired: fail closed, never open.
func (ts *TokenService) Expired(raw string, now time.Time) bool {
	tok, err := ts.Parse(raw)
	if err != nil {
		return true
	}
	return tok.IsExpired(now)
}
