package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSelect(t *testing.T) {
	q := Select().
		From("divide.Credentials").
		WhereMeta("email", OpEq, "a@x.com").
		Limit(1).
		Build()

	sql, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM divide_Credentials WHERE meta_data.email = 'a@x.com' LIMIT 1", sql)
}

func TestCompileCount(t *testing.T) {
	q := Count().From("divide.Credentials").Build()

	sql, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM divide_Credentials", sql)
}

func TestCompileDelete(t *testing.T) {
	q := Delete().
		From("app.Scores").
		Where("owner_id", OpEq, "7").
		Limit(2).
		Offset(4).
		Build()

	sql, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM app_Scores WHERE owner_id = '7' LIMIT 2 OFFSET 4", sql)
}

func TestCompileConnectors(t *testing.T) {
	q := Select().
		From("t.T").
		Where("a", OpEq, "1").
		Where("b", OpGt, "2", Or).
		Where("c", OpLte, "3", And).
		Build()

	sql, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t_T WHERE a = '1' OR b > '2' AND c <= '3'", sql)
}

func TestCompileRandom(t *testing.T) {
	q := Select().From("t.T").Random().Limit(5).Build()

	sql, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t_T ORDER BY RANDOM() LIMIT 5", sql)
}

func TestCompileRejectsUpdate(t *testing.T) {
	q := &Query{Action: ActionUpdate, From: "t.T"}

	_, err := q.Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActionNotSupported)
}

func TestCompileEscapesValues(t *testing.T) {
	q := Select().
		From("t.T").
		Where("name", OpEq, "o'brien").
		Build()

	sql, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t_T WHERE name = 'o''brien'", sql)
}

func TestCompileDeterministic(t *testing.T) {
	build := func() *Query {
		return Select().
			From("divide.Credentials").
			WhereMeta("auth_token", OpEq, "tok").
			WhereMeta("validation", OpNeq, "1", And).
			Limit(3).
			Build()
	}

	a, err := build().Compile()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		b, err := build().Compile()
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestSafeNameRoundTrip(t *testing.T) {
	cases := []string{
		"divide.Credentials",
		"com.app.Score",
		"Plain",
	}

	for _, name := range cases {
		assert.Equal(t, name, ReverseName(SafeName(name)))
	}
}

func TestMetaFieldHelpers(t *testing.T) {
	assert.Equal(t, "meta_data.email", Meta("email"))

	field, ok := IsMetaField("meta_data.email")
	assert.True(t, ok)
	assert.Equal(t, "email", field)

	field, ok = IsMetaField("owner_id")
	assert.False(t, ok)
	assert.Equal(t, "owner_id", field)
}

func TestBuilderFirstClauseHasNoConnector(t *testing.T) {
	q := Select().
		From("t.T").
		Where("a", OpEq, "1", Or).
		Where("b", OpEq, "2").
		Build()

	require.Len(t, q.Where, 2)
	assert.Empty(t, q.Where[0].Connector)
	assert.Equal(t, And, q.Where[1].Connector)
}
