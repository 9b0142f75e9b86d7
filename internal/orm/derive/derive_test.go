package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

const model = `
entities:
  - name: Owner
    primary_key: uuid
    access: {kind: owner-only, user: true}
    fields:
      - {name: first_name, type: string}
      - {name: secret, type: string, nullable: true}
    relationships:
      - {name: pets, target: Pet, cardinality: many, foreign_key: owner_id}
      - name: certifications
        target: Certification
        cardinality: many
        join_table: owner_certifications
        join_column: owner_id
        inverse_column: certification_id
    computed:
      - {name: shout, type: string, template: "{{.first_name}}!"}
    resource:
      serialize: [pets, certifications, shout]
      pop_params: [secret]
  - name: Certification
    fields:
      - {name: name, type: string}
  - name: Specie
    slug: slug
    fields:
      - {name: slug, type: string}
  - name: Pet
    primary_key: uuid
    access: {kind: owner-or-public, owner_entity: Owner}
    fields:
      - {name: name, type: string}
      - {name: age, type: integer, nullable: true}
      - {name: specie_id, type: string, nullable: true}
    relationships:
      - {name: specie, target: Specie, foreign_key: specie_id}
    resource:
      serialize: [specie, owner]
    search:
      search_gte: true
`

func build(t *testing.T) *Engine {
	t.Helper()
	registry, err := schema.LoadModel([]byte(model))
	require.NoError(t, err)
	engine, err := Build(registry, dialect.SQLite)
	require.NoError(t, err)
	return engine
}

func fieldNames(s *shape.Schema) []string {
	return s.Names()
}

func TestOutput(t *testing.T) {
	engine := build(t)

	pet, ok := engine.Set("Pet")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name", "age", "specie_id", "owner_id", "public", "specie", "owner"}, fieldNames(pet.Output))

	owner, _ := engine.Set("Owner")
	assert.Equal(t, []string{"id", "first_name", "pets", "certifications", "shout"}, fieldNames(owner.Output))

	pets, _ := owner.Output.Field("pets")
	assert.Equal(t, shape.KindRefList, pets.Kind)
	assert.Same(t, pet.Output, pets.Target, "forward reference resolves to the Pet output")

	ownerRef, _ := pet.Output.Field("owner")
	assert.Equal(t, shape.KindRef, ownerRef.Kind)
	assert.Same(t, owner.Output, ownerRef.Target, "mutual references resolve")

	certification, _ := engine.Set("Certification")
	assert.Equal(t, []string{"id", "name"}, fieldNames(certification.Output), "unserialized relationships are absent")
}

func TestCreateAndPatch(t *testing.T) {
	engine := build(t)

	pet, _ := engine.Set("Pet")
	assert.Equal(t, []string{"name", "age", "specie_id", "owner_id", "public", "specie", "owner"}, fieldNames(pet.Create))
	assert.Equal(t, []string{"name", "public"}, pet.Create.Required())

	specie, _ := pet.Create.Field("specie")
	assert.Equal(t, shape.KindIdentifier, specie.Kind)

	certification, _ := engine.Set("Certification")
	assert.Equal(t, []string{"id", "name"}, fieldNames(certification.Create), "string keys are client provided")
	assert.Equal(t, []string{"name"}, fieldNames(certification.Patch), "primary key is not patchable")

	owner, _ := engine.Set("Owner")
	certs, _ := owner.Create.Field("certifications")
	assert.Equal(t, shape.KindIdentifierList, certs.Kind)
	_, present := owner.Create.Field("secret")
	assert.False(t, present, "popped fields are excluded")

	assert.Empty(t, pet.Patch.Required())
	for _, f := range pet.Patch.Fields {
		assert.True(t, f.Nullable, f.Name)
	}
}

func TestSearchSchemas(t *testing.T) {
	engine := build(t)
	pet, _ := engine.Set("Pet")

	assert.Contains(t, fieldNames(pet.SearchQuery), "age_gte")
	assert.Equal(t, []string{"page", "total_pages", "pets"}, fieldNames(pet.SearchResponse))

	rows, _ := pet.SearchResponse.Field("pets")
	assert.Same(t, pet.Output, rows.Target)

	_, ok := engine.Schema("PetSearchQuery")
	assert.True(t, ok)
	assert.Len(t, engine.Schemas(), 4*5)
}

func TestBuildErrors(t *testing.T) {
	t.Run("untyped computed attribute", func(t *testing.T) {
		registry, err := schema.LoadModel([]byte(`
entities:
  - name: Owner
    fields:
      - {name: name, type: string}
    computed:
      - {name: shout, template: "{{.name}}"}
    resource:
      serialize: [shout]
`))
		require.NoError(t, err)
		_, err = Build(registry, dialect.SQLite)
		require.Error(t, err)
		assert.True(t, schema.IsConfigurationError(err))
	})

	t.Run("unknown serialize name", func(t *testing.T) {
		registry, err := schema.LoadModel([]byte(`
entities:
  - name: Owner
    fields:
      - {name: name, type: string}
    resource:
      serialize: [nope]
`))
		require.NoError(t, err)
		_, err = Build(registry, dialect.SQLite)
		assert.True(t, schema.IsConfigurationError(err))
	})

	t.Run("unsealed registry", func(t *testing.T) {
		_, err := Build(schema.NewRegistry(), dialect.SQLite)
		assert.Error(t, err)
	})
}
