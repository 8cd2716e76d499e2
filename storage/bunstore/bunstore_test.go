package bunstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CherifSy/divide"
	"github.com/CherifSy/divide/query"
	"github.com/CherifSy/divide/storage/bunstore"
)

func setupStore(t *testing.T) *bunstore.Store {
	t.Helper()

	store, err := bunstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func seed(t *testing.T, store *bunstore.Store, ownerID int64, email string) *divide.Record {
	t.Helper()

	r := divide.NewCredentials("user", email, "hash")
	r.OwnerID = ownerID
	r.Put("level", "7")
	require.NoError(t, store.Save(context.Background(), r))
	return r
}

func TestSaveAndLookupByMeta(t *testing.T) {
	store := setupStore(t)
	seed(t, store, 1, "a@x.com")
	seed(t, store, 2, "b@x.com")

	q := query.Select().
		From(divide.TypeCredentials).
		WhereMeta("email", query.OpEq, "b@x.com").
		Limit(1).
		Build()

	records, err := store.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].OwnerID)
	assert.Equal(t, "b@x.com", records[0].Email())

	v, ok := records[0].Get("level")
	require.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestSaveUpsertsByOwner(t *testing.T) {
	store := setupStore(t)
	seed(t, store, 1, "a@x.com")

	updated := divide.NewCredentials("user", "changed@x.com", "hash2")
	updated.OwnerID = 1
	require.NoError(t, store.Save(context.Background(), updated))

	count, err := store.Count(context.Background(), divide.TypeCredentials)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	q := query.Select().From(divide.TypeCredentials).Build()
	records, err := store.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "changed@x.com", records[0].Email())
}

func TestLookupByOwnerID(t *testing.T) {
	store := setupStore(t)
	seed(t, store, 1, "a@x.com")
	seed(t, store, 2, "b@x.com")

	q := query.Select().
		From(divide.TypeCredentials).
		Where("owner_id", query.OpEq, "2").
		Build()

	records, err := store.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b@x.com", records[0].Email())
}

func TestConnectors(t *testing.T) {
	store := setupStore(t)
	seed(t, store, 1, "a@x.com")
	seed(t, store, 2, "b@x.com")
	seed(t, store, 3, "c@x.com")

	q := query.Select().
		From(divide.TypeCredentials).
		WhereMeta("email", query.OpEq, "a@x.com").
		WhereMeta("email", query.OpEq, "c@x.com", query.Or).
		Build()

	records, err := store.Execute(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestUserDataClause(t *testing.T) {
	store := setupStore(t)
	seed(t, store, 1, "a@x.com")

	other := divide.NewCredentials("user", "b@x.com", "hash")
	other.OwnerID = 2
	other.Put("level", "9")
	require.NoError(t, store.Save(context.Background(), other))

	q := query.Select().
		From(divide.TypeCredentials).
		Where("level", query.OpEq, "9").
		Build()

	records, err := store.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].OwnerID)
}

func TestDeleteReturnsRemoved(t *testing.T) {
	store := setupStore(t)
	seed(t, store, 1, "a@x.com")
	seed(t, store, 2, "b@x.com")

	q := query.Delete().
		From(divide.TypeCredentials).
		WhereMeta("email", query.OpEq, "a@x.com").
		Build()

	removed, err := store.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, int64(1), removed[0].OwnerID)

	count, err := store.Count(context.Background(), divide.TypeCredentials)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCountOnEmptyTable(t *testing.T) {
	store := setupStore(t)

	count, err := store.Count(context.Background(), "app.Missing")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSeparateTablesPerType(t *testing.T) {
	store := setupStore(t)
	seed(t, store, 1, "a@x.com")

	score := divide.NewRecord("app.Score")
	score.OwnerID = 1
	score.Put("points", "10")
	require.NoError(t, store.Save(context.Background(), score))

	count, err := store.Count(context.Background(), divide.TypeCredentials)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.Count(context.Background(), "app.Score")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRejectsReservedAction(t *testing.T) {
	store := setupStore(t)

	q := &query.Query{Action: query.ActionUpdate, From: divide.TypeCredentials}
	_, err := store.Execute(context.Background(), q)
	assert.ErrorIs(t, err, query.ErrActionNotSupported)
}
