package query

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
)

func TestToSQL(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *QueryBuilder
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name: "select all",
			build: func() *QueryBuilder {
				return New(nil, dialect.Postgres, "pets")
			},
			wantSQL:  "SELECT * FROM pets",
			wantArgs: []interface{}{},
		},
		{
			name: "postgres placeholders",
			build: func() *QueryBuilder {
				return New(nil, dialect.Postgres, "pets").
					Where("age", OpGreaterThanOrEqual, 3).
					Where("name", OpLike, "%re%").
					OrderByAsc("id").
					Limit(10).
					Offset(20)
			},
			wantSQL:  `SELECT * FROM pets WHERE age >= $1 AND name LIKE $2 ESCAPE '\' ORDER BY id ASC LIMIT $3 OFFSET $4`,
			wantArgs: []interface{}{3, "%re%", 10, 20},
		},
		{
			name: "sqlite placeholders",
			build: func() *QueryBuilder {
				return New(nil, dialect.SQLite, "pets").
					Where("age", OpLessThan, 3).
					Limit(5)
			},
			wantSQL:  "SELECT * FROM pets WHERE age < ? LIMIT ?",
			wantArgs: []interface{}{3, 5},
		},
		{
			name: "or group",
			build: func() *QueryBuilder {
				group := NewPredicateGroup(true).
					Add("owner_id", OpEqual, "u1").
					Add("public", OpIsTrue, nil)
				return New(nil, dialect.Postgres, "pets").
					Where("name", OpEqual, "rex").
					WhereGroup(group)
			},
			wantSQL:  "SELECT * FROM pets WHERE name = $1 AND (owner_id = $2 OR public = $3)",
			wantArgs: []interface{}{"rex", "u1", true},
		},
		{
			name: "empty group is skipped",
			build: func() *QueryBuilder {
				return New(nil, dialect.SQLite, "pets").WhereGroup(NewPredicateGroup(true))
			},
			wantSQL:  "SELECT * FROM pets",
			wantArgs: []interface{}{},
		},
		{
			name: "fuzzy matching",
			build: func() *QueryBuilder {
				group := NewPredicateGroup(true).
					Add("name", OpLike, "%rx%").
					Add("name", OpEditDistanceBelow, Fuzzy{Term: "rx", Threshold: 300})
				return New(nil, dialect.SQLite, "pets").WhereGroup(group)
			},
			wantSQL:  `SELECT * FROM pets WHERE (name LIKE ? ESCAPE '\' OR editdist3(name, ?) < ?)`,
			wantArgs: []interface{}{"%rx%", "rx", 300},
		},
		{
			name: "trigram similarity",
			build: func() *QueryBuilder {
				return New(nil, dialect.Postgres, "pets").
					Where("name", OpSimilarityAbove, Fuzzy{Term: "rx", Threshold: 0.7})
			},
			wantSQL:  "SELECT * FROM pets WHERE similarity(name, $1) > $2",
			wantArgs: []interface{}{"rx", 0.7},
		},
		{
			name: "join selects the base table",
			build: func() *QueryBuilder {
				return New(nil, dialect.SQLite, "pets").
					InnerJoin("owners", "owners.id = pets.owner_id").
					Where("owners.id", OpEqual, "u1").
					OrderByAsc("pets.id")
			},
			wantSQL:  "SELECT pets.* FROM pets INNER JOIN owners ON owners.id = pets.owner_id WHERE owners.id = ? ORDER BY pets.id ASC",
			wantArgs: []interface{}{"u1"},
		},
		{
			name: "in list",
			build: func() *QueryBuilder {
				return New(nil, dialect.Postgres, "pets").WhereIn("id", []interface{}{"a", "b"})
			},
			wantSQL:  "SELECT * FROM pets WHERE id IN ($1, $2)",
			wantArgs: []interface{}{"a", "b"},
		},
		{
			name: "empty in list",
			build: func() *QueryBuilder {
				return New(nil, dialect.Postgres, "pets").WhereIn("id", []interface{}{})
			},
			wantSQL:  "SELECT * FROM pets WHERE 1 = 0",
			wantArgs: []interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.build().ToSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestInvalidIdentifierPanics(t *testing.T) {
	assert.Panics(t, func() {
		New(nil, dialect.SQLite, "pets; DROP TABLE pets")
	})
	assert.Panics(t, func() {
		New(nil, dialect.SQLite, "pets").Where("name = 1 OR 1", OpEqual, 1)
	})
	assert.Panics(t, func() {
		New(nil, dialect.SQLite, "pets").InnerJoin("owners", "1 = 1")
	})
}

func TestClone(t *testing.T) {
	base := New(nil, dialect.SQLite, "pets").Where("age", OpEqual, 1)
	clone := base.Clone().Where("name", OpEqual, "rex").Limit(1)

	baseSQL, _, err := base.ToSQL()
	require.NoError(t, err)
	cloneSQL, _, err := clone.ToSQL()
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM pets WHERE age = ?", baseSQL)
	assert.Equal(t, "SELECT * FROM pets WHERE age = ? AND name = ? LIMIT ?", cloneSQL)
}

func TestExecution(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	t.Run("count ignores pagination", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pets WHERE age > $1")).
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

		count, err := New(db, dialect.Postgres, "pets").
			Where("age", OpGreaterThan, 2).
			OrderByAsc("id").
			Limit(1).
			Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, count)
	})

	t.Run("insert returns stored row", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO pets (id, name) VALUES ($1, $2) RETURNING *")).
			WithArgs("p1", "rex").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("p1", "rex"))

		row, err := New(db, dialect.Postgres, "pets").Insert(ctx, map[string]interface{}{"name": "rex", "id": "p1"})
		require.NoError(t, err)
		assert.Equal(t, "rex", row["name"])
	})

	t.Run("update binds set values before filters", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE pets SET age = $1, name = $2 WHERE id = $3")).
			WithArgs(4, "max", "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := New(db, dialect.Postgres, "pets").
			Where("id", OpEqual, "p1").
			Update(ctx, map[string]interface{}{"name": "max", "age": 4})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("delete returns affected rows", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM pets WHERE id = ?")).
			WithArgs("p1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		n, err := New(db, dialect.SQLite, "pets").Where("id", OpEqual, "p1").Delete(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("first with no rows", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM pets WHERE id = ? LIMIT ?")).
			WithArgs("nope", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := New(db, dialect.SQLite, "pets").Where("id", OpEqual, "nope").First(ctx)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
