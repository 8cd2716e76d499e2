package divide

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueParseRoundTrip(t *testing.T) {
	ts := NewTokenService([]byte("signing-key"), nil)

	raw, err := ts.Issue(42, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	tok, err := ts.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tok.OwnerID)
	assert.False(t, tok.IsExpired(time.Now()))
	assert.WithinDuration(t, tok.IssuedAt.Add(time.Hour), tok.ExpiresAt, time.Second)
}

func TestIssueIsUniquePerCall(t *testing.T) {
	ts := NewTokenService([]byte("signing-key"), nil)

	// Same owner, same ttl, same second: the strings must still differ,
	// or rotating a token would leave the old one valid.
	a, err := ts.Issue(42, time.Hour)
	require.NoError(t, err)
	b, err := ts.Issue(42, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	for _, raw := range []string{a, b} {
		tok, err := ts.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, int64(42), tok.OwnerID)
	}
}

func TestZeroTTLExpiresImmediately(t *testing.T) {
	ts := NewTokenService([]byte("signing-key"), nil)

	raw, err := ts.Issue(1, 0)
	require.NoError(t, err)

	tok, err := ts.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, tok.IssuedAt, tok.ExpiresAt)
	assert.True(t, tok.IsExpired(tok.ExpiresAt.Add(time.Millisecond)))
	assert.True(t, ts.Expired(raw, time.Now().Add(time.Second)))
}

func TestExpiredTokenStillParses(t *testing.T) {
	ts := NewTokenService([]byte("signing-key"), nil)

	raw, err := ts.Issue(7, 0)
	require.NoError(t, err)

	tok, err := ts.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), tok.OwnerID)
}

func TestParseRejectsTampering(t *testing.T) {
	ts := NewTokenService([]byte("signing-key"), nil)

	raw, err := ts.Issue(1, time.Hour)
	require.NoError(t, err)

	_, err = ts.Parse(raw + "x")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestParseRejectsForeignKey(t *testing.T) {
	ts := NewTokenService([]byte("signing-key"), nil)
	other := NewTokenService([]byte("other-key"), nil)

	raw, err := other.Issue(1, time.Hour)
	require.NoError(t, err)

	_, err = ts.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestParseRejectsGarbage(t *testing.T) {
	ts := NewTokenService([]byte("signing-key"), nil)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := ts.Parse(raw)
		assert.ErrorIs(t, err, ErrTokenMalformed)
	}
}

func TestExpiredFailsClosedOnGarbage(t *testing.T) {
	ts := NewTokenService([]byte("signing-key"), nil)
	assert.True(t, ts.Expired("garbage", time.Now()))
}
