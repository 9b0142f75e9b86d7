package shape

import (
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restgen/internal/orm/schema"
)

func createPet() *Schema {
	return New("PetCreate", "Pet").
		Add(&Field{Name: "name", Kind: KindScalar, Type: schema.TypeString, Required: true}).
		Add(&Field{Name: "age", Kind: KindScalar, Type: schema.TypeInteger, Nullable: true}).
		Add(&Field{Name: "born", Kind: KindScalar, Type: schema.TypeDate, Nullable: true}).
		Add(&Field{Name: "specie", Kind: KindIdentifier, Type: schema.TypeString, Nullable: true}).
		Add(&Field{Name: "tags", Kind: KindIdentifierList, Type: schema.TypeInteger, Nullable: true})
}

func TestDecode(t *testing.T) {
	s := createPet()

	t.Run("valid payload", func(t *testing.T) {
		out, err := s.Decode([]byte(`{"name":"rex","age":3,"born":"2020-02-01","tags":[1,2],"extra":true}`))
		require.NoError(t, err)
		assert.Equal(t, "rex", out["name"])
		assert.Equal(t, int64(3), out["age"])
		assert.Equal(t, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), out["born"])
		assert.Equal(t, []interface{}{int64(1), int64(2)}, out["tags"])
		assert.NotContains(t, out, "extra")
		assert.NotContains(t, out, "specie")
	})

	t.Run("present null is kept", func(t *testing.T) {
		out, err := s.Decode([]byte(`{"name":"rex","age":null}`))
		require.NoError(t, err)
		assert.Contains(t, out, "age")
		assert.Nil(t, out["age"])
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := s.Decode([]byte(`{"age":3}`))
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "name", verr.Errors[0].Field)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := s.Decode([]byte(`{"name":"rex","age":"three"}`))
		assert.True(t, IsValidationError(err))
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := s.Decode([]byte(`{"name":"rex","born":"yesterday"}`))
		assert.True(t, IsValidationError(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := s.Decode([]byte(`{"name":`))
		assert.True(t, IsValidationError(err))
	})

	t.Run("empty body against optional schema", func(t *testing.T) {
		patch := New("PetPatch", "Pet").
			Add(&Field{Name: "name", Kind: KindScalar, Type: schema.TypeString, Nullable: true})
		out, err := patch.Decode(nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestDecodeQuery(t *testing.T) {
	one, zero := 1.0, 0.0
	s := New("PetSearchQuery", "Pet").
		Add(&Field{Name: "name", Kind: KindScalar, Type: schema.TypeString, Nullable: true}).
		Add(&Field{Name: "age_gte", Kind: KindScalar, Type: schema.TypeInteger, Required: true}).
		Add(&Field{Name: "public", Kind: KindScalar, Type: schema.TypeBoolean, Nullable: true}).
		Add(&Field{Name: "limit", Kind: KindScalar, Type: schema.TypeInteger, Default: int64(10), Minimum: &one}).
		Add(&Field{Name: "page", Kind: KindScalar, Type: schema.TypeInteger, Default: int64(0), Minimum: &zero})

	out, err := s.DecodeQuery(url.Values{"age_gte": {"2"}, "public": {"true"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out["age_gte"])
	assert.Equal(t, true, out["public"])
	assert.Equal(t, int64(10), out["limit"])
	assert.Equal(t, int64(0), out["page"])
	assert.NotContains(t, out, "name")

	_, err = s.DecodeQuery(url.Values{})
	assert.True(t, IsValidationError(err), "required param missing")

	_, err = s.DecodeQuery(url.Values{"age_gte": {"x"}})
	assert.True(t, IsValidationError(err), "unparsable integer")

	_, err = s.DecodeQuery(url.Values{"age_gte": {"1"}, "limit": {"0"}})
	assert.True(t, IsValidationError(err), "limit below minimum")

	_, err = s.DecodeQuery(url.Values{"age_gte": {"1"}, "page": {"-1"}})
	assert.True(t, IsValidationError(err), "negative page")
}

func TestRender(t *testing.T) {
	specie := New("SpecieOutput", "Specie").
		Add(&Field{Name: "id", Kind: KindScalar, Type: schema.TypeString}).
		Add(&Field{Name: "pets", Kind: KindRefList, Ref: "PetOutput"})

	full := &schema.Computed{Name: "label", Type: schema.TypeString, Compute: func(r map[string]interface{}) (interface{}, error) {
		return r["name"].(string) + "!", nil
	}}

	pet := New("PetOutput", "Pet").
		Add(&Field{Name: "name", Kind: KindScalar, Type: schema.TypeString}).
		Add(&Field{Name: "public", Kind: KindScalar, Type: schema.TypeBoolean}).
		Add(&Field{Name: "born", Kind: KindScalar, Type: schema.TypeDate, Nullable: true}).
		Add(&Field{Name: "label", Kind: KindComputed, Type: schema.TypeString, Computed: full}).
		Add(&Field{Name: "specie", Kind: KindRef, Ref: "SpecieOutput", Nullable: true})

	assert.False(t, pet.Resolved())
	lookup := map[string]*Schema{"SpecieOutput": specie, "PetOutput": pet}
	require.NoError(t, pet.Resolve(func(n string) (*Schema, bool) { s, ok := lookup[n]; return s, ok }))
	require.NoError(t, specie.Resolve(func(n string) (*Schema, bool) { s, ok := lookup[n]; return s, ok }))
	assert.Same(t, specie, pet.Fields[4].Target)

	embedded, err := specie.RenderShallow(map[string]interface{}{"id": []byte("dog")})
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, embedded.Keys())

	out, err := pet.Render(map[string]interface{}{
		"name":   "rex",
		"public": int64(1),
		"born":   time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
	}, map[string]interface{}{"specie": embedded})
	require.NoError(t, err)

	body, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"rex","public":true,"born":"2020-02-01","label":"rex!","specie":{"id":"dog"}}`, string(body))
}

func TestObjectUnmarshal(t *testing.T) {
	var o Object
	require.NoError(t, json.Unmarshal([]byte(`{"name": "rex", "age": 3}`), &o))
	assert.Equal(t, []string{"age", "name"}, o.Keys())
	name, ok := o.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "rex", name)

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &o))
}

func TestResolveUnknownReference(t *testing.T) {
	s := New("PetOutput", "Pet").Add(&Field{Name: "owner", Kind: KindRef, Ref: "OwnerOutput"})
	err := s.Resolve(func(string) (*Schema, bool) { return nil, false })
	assert.Error(t, err)
}

func TestJSONSchema(t *testing.T) {
	doc := createPet().JSONSchema()
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, []string{"name"}, doc["required"])

	props := doc["properties"].(map[string]interface{})
	assert.Equal(t, "date", props["born"].(map[string]interface{})["format"])
	assert.Equal(t, []string{"integer", "null"}, props["age"].(map[string]interface{})["type"])

	defs := Definitions(createPet())
	assert.Contains(t, defs["definitions"], "PetCreate")
}
