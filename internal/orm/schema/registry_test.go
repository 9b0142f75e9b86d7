package schema

import (
	"strings"
	"testing"
)

func newOwner() *Entity {
	owner := NewEntity("Owner")
	owner.KeyStrategy = KeyUUID
	owner.Access = AccessControl{Kind: AccessOwnerOnly, IsUser: true}
	owner.Fields = []*Field{
		{Name: "first_name", Type: TypeString},
		{Name: "last_name", Type: TypeString, Nullable: true},
	}
	owner.Relationships = []*Relationship{
		{Name: "pets", Target: "Pet", Cardinality: Many, ForeignKey: "owner_id"},
	}
	owner.Read.RoutedRelationships = []string{"pets"}
	return owner
}

func newPet() *Entity {
	pet := NewEntity("Pet")
	pet.KeyStrategy = KeyUUID
	pet.Access = AccessControl{Kind: AccessOwnerOrPublic, OwnerEntity: "Owner"}
	pet.Fields = []*Field{
		{Name: "name", Type: TypeString},
	}
	return pet
}

func TestRegistry(t *testing.T) {
	t.Run("register and get entity", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register(newOwner()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		owner, ok := registry.Get("Owner")
		if !ok {
			t.Fatal("entity should exist")
		}
		if owner.Table != "owners" {
			t.Errorf("expected table owners, got %s", owner.Table)
		}
		if pk := owner.PrimaryKey(); pk == nil || pk.Name != "id" {
			t.Errorf("expected id primary key, got %+v", pk)
		}
		if owner.Access.OwnerColumn != "id" {
			t.Errorf("user entity should own rows by primary key, got %q", owner.Access.OwnerColumn)
		}
		if _, ok := registry.ByTable("owners"); !ok {
			t.Error("entity should be reachable by table")
		}
	})

	t.Run("duplicate registration", func(t *testing.T) {
		registry := NewRegistry()
		registry.MustRegister(newOwner())
		if err := registry.Register(newOwner()); err == nil {
			t.Error("expected duplicate error")
		}
	})

	t.Run("forward references resolve on seal", func(t *testing.T) {
		registry := NewRegistry()
		registry.MustRegister(newOwner())
		if err := registry.Seal(); err == nil {
			t.Fatal("expected unknown target Pet to fail")
		}

		registry = NewRegistry()
		registry.MustRegister(newOwner(), newPet())
		if err := registry.Seal(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := registry.Register(NewEntity("Late")); err == nil {
			t.Error("sealed registry should reject registration")
		}
	})

	t.Run("ownership columns are added", func(t *testing.T) {
		registry := NewRegistry()
		registry.MustRegister(newOwner(), newPet())

		pet, _ := registry.Get("Pet")
		if _, ok := pet.Field("owner_id"); !ok {
			t.Error("owner_id column should be added")
		}
		if f, ok := pet.Field("public"); !ok || f.Type != TypeBoolean {
			t.Error("public boolean column should be added")
		}
		rel, ok := pet.Relationship("owner")
		if !ok || rel.Target != "Owner" || rel.ForeignKey != "owner_id" {
			t.Errorf("owner relationship should be added, got %+v", rel)
		}
	})

	t.Run("dependency order", func(t *testing.T) {
		registry := NewRegistry()
		registry.MustRegister(newPet(), newOwner())
		order, err := registry.DependencyOrder()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Join(order, ",") != "Owner,Pet" {
			t.Errorf("expected Owner before Pet, got %v", order)
		}
	})
}

func TestValidatorStructural(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *Entity)
		wantErr string
	}{
		{
			name:    "slug must exist",
			mutate:  func(e *Entity) { e.Slug = "missing" },
			wantErr: "slug field does not exist",
		},
		{
			name: "autoincrement needs integer key",
			mutate: func(e *Entity) {
				e.KeyStrategy = KeyAutoIncrement
				e.Fields = append(e.Fields, &Field{Name: "id", Type: TypeString, Primary: true})
			},
			wantErr: "must be an integer",
		},
		{
			name: "two primary keys",
			mutate: func(e *Entity) {
				e.Fields = append(e.Fields,
					&Field{Name: "a", Type: TypeString, Primary: true},
					&Field{Name: "b", Type: TypeString, Primary: true})
			},
			wantErr: "exactly one primary key",
		},
		{
			name:    "untyped field",
			mutate:  func(e *Entity) { e.Fields = append(e.Fields, &Field{Name: "x"}) },
			wantErr: "field has no type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntity("Thing")
			tt.mutate(e)
			e.Finalize()
			err := NewValidator(nil).ValidateStructural(e)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if !IsConfigurationError(err) {
				t.Errorf("expected configuration error, got %T", err)
			}
		})
	}
}

func TestPluralize(t *testing.T) {
	cases := map[string]string{
		"owner":         "owners",
		"specie":        "species",
		"certification": "certifications",
		"box":           "boxes",
		"category":      "categories",
		"key":           "keys",
	}
	for in, want := range cases {
		if got := Pluralize(in); got != want {
			t.Errorf("Pluralize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSelector(t *testing.T) {
	if (Selector{}).Enabled() {
		t.Error("zero selector should be disabled")
	}
	if !SelectAll().Includes("anything") {
		t.Error("select all should include every field")
	}
	s := SelectFields("age")
	if !s.Includes("age") || s.Includes("name") {
		t.Error("allow-list selector should include only listed fields")
	}
}
