package divide

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!", DefaultBcryptCost)
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "s3cret!", hash)

	assert.NoError(t, ComparePasswordAndHash("s3cret!", hash))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("", DefaultBcryptCost)
	assert.ErrorIs(t, err, ErrNoEmptyString)
}

func TestHashPasswordClampsCost(t *testing.T) {
	hash, err := HashPassword("s3cret!", 99)
	require.NoError(t, err)
	assert.NoError(t, ComparePasswordAndHash("s3cret!", hash))
}

func TestComparePasswordMismatch(t *testing.T) {
	hash, err := HashPassword("right", DefaultBcryptCost)
	require.NoError(t, err)

	err = ComparePasswordAndHash("wrong", hash)
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}
