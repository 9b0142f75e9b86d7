package search

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
)

func pet(configure func(c *schema.SearchConfig)) *schema.Entity {
	e := schema.NewEntity("Pet")
	e.Fields = []*schema.Field{
		{Name: "name", Type: schema.TypeString},
		{Name: "nickname", Type: schema.TypeString, Nullable: true},
		{Name: "age", Type: schema.TypeInteger},
		{Name: "weight", Type: schema.TypeFloat},
		{Name: "vaccinated", Type: schema.TypeBoolean},
	}
	if configure != nil {
		configure(&e.Search)
	}
	e.Finalize()
	return e
}

func TestCompileSchema(t *testing.T) {
	e := pet(func(c *schema.SearchConfig) {
		c.Gte = schema.SelectAll()
		c.Lt = schema.SelectFields("age")
		c.RequiredParams = []string{"age"}
	})

	_, s, err := Compile(e, dialect.SQLite)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"name", "nickname", "age_gte", "age_lt", "weight_gte", "vaccinated", "limit", "page",
	}, s.Names())

	ageGte, _ := s.Field("age_gte")
	assert.True(t, ageGte.Required)
	weightGte, _ := s.Field("weight_gte")
	assert.False(t, weightGte.Required)

	_, ok := s.Field("id")
	assert.False(t, ok, "primary key is never a filter")

	limit, _ := s.Field("limit")
	assert.Equal(t, int64(10), limit.Default)
}

func TestCompileSimilarity(t *testing.T) {
	t.Run("sqlite threshold", func(t *testing.T) {
		e := pet(func(c *schema.SearchConfig) { c.Similarity = schema.SelectAll() })
		_, s, err := Compile(e, dialect.SQLite)
		require.NoError(t, err)
		threshold, ok := s.Field("threshold")
		require.True(t, ok)
		assert.Equal(t, schema.TypeInteger, threshold.Type)
		assert.Equal(t, int64(300), threshold.Default)
	})

	t.Run("postgres threshold", func(t *testing.T) {
		e := pet(func(c *schema.SearchConfig) { c.Similarity = schema.SelectAll() })
		_, s, err := Compile(e, dialect.Postgres)
		require.NoError(t, err)
		threshold, _ := s.Field("threshold")
		assert.Equal(t, schema.TypeFloat, threshold.Type)
		assert.Equal(t, 0.7, threshold.Default)
	})

	t.Run("unsupported dialect", func(t *testing.T) {
		e := pet(func(c *schema.SearchConfig) { c.Similarity = schema.SelectAll() })
		_, _, err := Compile(e, dialect.Unknown)
		require.Error(t, err)
		assert.True(t, schema.IsConfigurationError(err))
	})

	t.Run("sqlite threshold too small", func(t *testing.T) {
		low := 99.0
		e := pet(func(c *schema.SearchConfig) {
			c.Similarity = schema.SelectAll()
			c.SimilarityThreshold = &low
		})
		_, _, err := Compile(e, dialect.SQLite)
		assert.True(t, schema.IsConfigurationError(err))
	})

	t.Run("postgres threshold too large", func(t *testing.T) {
		high := 1.0
		e := pet(func(c *schema.SearchConfig) {
			c.Similarity = schema.SelectAll()
			c.SimilarityThreshold = &high
		})
		_, _, err := Compile(e, dialect.Postgres)
		assert.True(t, schema.IsConfigurationError(err))
	})

	t.Run("no threshold without similarity", func(t *testing.T) {
		_, s, err := Compile(pet(nil), dialect.Unknown)
		require.NoError(t, err)
		_, ok := s.Field("threshold")
		assert.False(t, ok)
	})
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		configure func(c *schema.SearchConfig)
		query     url.Values
		wantSQL   string
		wantArgs  []interface{}
	}{
		{
			name:     "exact string and boolean",
			query:    url.Values{"name": {"rex"}, "vaccinated": {"true"}},
			wantSQL:  "SELECT * FROM pets WHERE name = ? AND vaccinated = ?",
			wantArgs: []interface{}{"rex", true},
		},
		{
			name:      "comparators",
			configure: func(c *schema.SearchConfig) { c.Gte = schema.SelectAll(); c.Lt = schema.SelectFields("age") },
			query:     url.Values{"age_gte": {"2"}, "age_lt": {"9"}, "weight_gte": {"1.5"}},
			wantSQL:   "SELECT * FROM pets WHERE age >= ? AND age < ? AND weight >= ?",
			wantArgs:  []interface{}{int64(2), int64(9), 1.5},
		},
		{
			name:      "contains",
			configure: func(c *schema.SearchConfig) { c.Contains = schema.SelectAll() },
			query:     url.Values{"name": {"re"}},
			wantSQL:   `SELECT * FROM pets WHERE name LIKE ? ESCAPE '\'`,
			wantArgs:  []interface{}{"%re%"},
		},
		{
			name:      "contains matches wildcards literally",
			configure: func(c *schema.SearchConfig) { c.Contains = schema.SelectAll() },
			query:     url.Values{"name": {`50%_off\`}},
			wantSQL:   `SELECT * FROM pets WHERE name LIKE ? ESCAPE '\'`,
			wantArgs:  []interface{}{`%50\%\_off\\%`},
		},
		{
			name:      "similarity with default threshold",
			configure: func(c *schema.SearchConfig) { c.Similarity = schema.SelectAll() },
			query:     url.Values{"name": {"rx"}},
			wantSQL:   "SELECT * FROM pets WHERE editdist3(name, ?) < ?",
			wantArgs:  []interface{}{"rx", int64(300)},
		},
		{
			name: "contains or similarity",
			configure: func(c *schema.SearchConfig) {
				c.Contains = schema.SelectAll()
				c.Similarity = schema.SelectAll()
			},
			query:    url.Values{"name": {"rx"}, "threshold": {"150"}},
			wantSQL:  `SELECT * FROM pets WHERE (name LIKE ? ESCAPE '\' OR editdist3(name, ?) < ?)`,
			wantArgs: []interface{}{"%rx%", "rx", int64(150)},
		},
		{
			name: "per-field selectors",
			configure: func(c *schema.SearchConfig) {
				c.Contains = schema.SelectFields("nickname")
			},
			query:    url.Values{"name": {"rex"}, "nickname": {"re"}},
			wantSQL:  `SELECT * FROM pets WHERE name = ? AND nickname LIKE ? ESCAPE '\'`,
			wantArgs: []interface{}{"rex", "%re%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, s, err := Compile(pet(tt.configure), dialect.SQLite)
			require.NoError(t, err)

			values, err := s.DecodeQuery(tt.query)
			require.NoError(t, err)

			qb := filter.Apply(query.New(nil, dialect.SQLite, "pets"), values)
			sql, args, err := qb.ToSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestPage(t *testing.T) {
	e := pet(func(c *schema.SearchConfig) { c.ResultsLimit = 3 })
	filter, s, err := Compile(e, dialect.SQLite)
	require.NoError(t, err)

	values, err := s.DecodeQuery(url.Values{})
	require.NoError(t, err)
	limit, page := filter.Page(values)
	assert.Equal(t, 3, limit)
	assert.Equal(t, 0, page)

	values, err = s.DecodeQuery(url.Values{"limit": {"5"}, "page": {"2"}})
	require.NoError(t, err)
	limit, page = filter.Page(values)
	assert.Equal(t, 5, limit)
	assert.Equal(t, 2, page)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(9, 10))
	assert.Equal(t, 2, TotalPages(10, 10))
	assert.Equal(t, 3, TotalPages(5, 2))
}

func TestResponse(t *testing.T) {
	e := pet(nil)
	s := ResponseSchema(e, "PetOutput")
	assert.Equal(t, []string{"page", "total_pages", "pets"}, s.Names())

	out := Response(e, 1, 4, nil)
	rows, ok := out.Get("pets")
	require.True(t, ok)
	assert.NotNil(t, rows)
}
