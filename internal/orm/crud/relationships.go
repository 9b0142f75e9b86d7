package crud

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/search"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// DefaultRelationshipLimit is the page size of relationship pages
const DefaultRelationshipLimit = 10

// RelationshipController pages through the targets of one routed
// relationship. Visibility follows the parent entity's access control: a
// parent the caller may not see has no visible targets.
type RelationshipController struct {
	*base
	rel    *schema.Relationship
	target *base
	params *shape.Schema
}

func newRelationshipController(b *base, name string) *RelationshipController {
	rel, _ := b.entity.Relationship(name)
	target, _ := b.controllers.base(rel.Target)

	q := shape.New(fmt.Sprintf("%s%sPageQuery", b.entity.Name, schema.ToCamelCase(rel.Name)), b.entity.Name)
	for _, f := range search.PageFields(DefaultRelationshipLimit) {
		q.Add(f)
	}

	return &RelationshipController{base: b, rel: rel, target: target, params: q}
}

// Relationship returns the relationship the controller pages through
func (r *RelationshipController) Relationship() *schema.Relationship {
	return r.rel
}

// Query returns the schema query strings are decoded with
func (r *RelationshipController) Query() *shape.Schema {
	return r.params
}

// Output returns the schema of one page item
func (r *RelationshipController) Output() *shape.Schema {
	return r.target.set.Output
}

// Page returns one page of the targets of the parent addressed by key, in
// target primary key order
func (r *RelationshipController) Page(ctx context.Context, caller access.Caller, key string, values map[string]interface{}) ([]*shape.Object, error) {
	value, ok := scanKey(r.entity.LookupField(), key)
	if !ok {
		return []*shape.Object{}, nil
	}
	limit, page := search.PageOf(values, DefaultRelationshipLimit)

	var out []*shape.Object
	err := r.controllers.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		qb := r.join(tx).
			Where(r.entity.Table+"."+r.entity.LookupField().Name, query.OpEqual, value)
		access.Apply(qb, r.entity, caller, r.entity.Table)

		targetTable := r.target.entity.Table
		records, err := qb.
			OrderByAsc(targetTable + "." + r.target.pk()).
			Limit(limit).
			Offset(page * limit).
			All(ctx)
		if err != nil {
			return fmt.Errorf("failed to page %s: %w", r.rel.Name, ConvertDBError(err))
		}

		out, err = r.target.renderAll(ctx, tx, records)
		return err
	})
	return out, err
}

// join selects the target table joined to the parent through the
// relationship's storage mapping
func (r *RelationshipController) join(q query.Querier) *query.QueryBuilder {
	parent, target := r.entity, r.target.entity
	qb := r.table(q, target.Table)

	switch {
	case r.rel.Cardinality == schema.One:
		return qb.InnerJoin(parent.Table, fmt.Sprintf("%s.%s = %s.%s",
			parent.Table, r.rel.ForeignKey, target.Table, target.PrimaryKey().Name))

	case r.rel.IsManyToMany():
		return qb.
			InnerJoin(r.rel.JoinTable, fmt.Sprintf("%s.%s = %s.%s",
				r.rel.JoinTable, r.rel.InverseColumn, target.Table, target.PrimaryKey().Name)).
			InnerJoin(parent.Table, fmt.Sprintf("%s.%s = %s.%s",
				parent.Table, parent.PrimaryKey().Name, r.rel.JoinTable, r.rel.JoinColumn))

	default:
		return qb.InnerJoin(parent.Table, fmt.Sprintf("%s.%s = %s.%s",
			parent.Table, parent.PrimaryKey().Name, target.Table, r.rel.ForeignKey))
	}
}
