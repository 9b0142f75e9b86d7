package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// output renders a stored record with its serialized relationships. Related
// rows are embedded shallowly and without the target's access control.
func (b *base) output(ctx context.Context, q query.Querier, record map[string]interface{}) (*shape.Object, error) {
	embedded := make(map[string]interface{})
	for _, f := range b.set.Output.Fields {
		if !f.Kind.IsRef() {
			continue
		}

		qb, err := b.related(q, f.Relationship, record)
		if err != nil {
			return nil, err
		}
		var rows []map[string]interface{}
		if qb != nil {
			if rows, err = qb.All(ctx); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f.Name, ConvertDBError(err))
			}
		}

		if f.Kind == shape.KindRef {
			if len(rows) == 0 {
				embedded[f.Name] = nil
				continue
			}
			obj, err := f.Target.RenderShallow(rows[0])
			if err != nil {
				return nil, err
			}
			embedded[f.Name] = obj
			continue
		}

		objs := make([]*shape.Object, 0, len(rows))
		for _, row := range rows {
			obj, err := f.Target.RenderShallow(row)
			if err != nil {
				return nil, err
			}
			objs = append(objs, obj)
		}
		embedded[f.Name] = objs
	}
	return b.set.Output.Render(record, embedded)
}

// related builds the query for the target rows of rel that belong to
// record, ordered by the target's primary key. It returns nil when record
// references nothing.
func (b *base) related(q query.Querier, rel *schema.Relationship, record map[string]interface{}) (*query.QueryBuilder, error) {
	target, ok := b.controllers.engine.Registry().Get(rel.Target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, rel.Target)
	}
	targetPK := target.PrimaryKey().Name
	qb := b.table(q, target.Table)

	switch {
	case rel.Cardinality == schema.One:
		fk := record[rel.ForeignKey]
		if fk == nil {
			return nil, nil
		}
		return qb.Where(targetPK, query.OpEqual, fk), nil

	case rel.IsManyToMany():
		return qb.
			InnerJoin(rel.JoinTable, fmt.Sprintf("%s.%s = %s.%s", rel.JoinTable, rel.InverseColumn, target.Table, targetPK)).
			Where(rel.JoinTable+"."+rel.JoinColumn, query.OpEqual, record[b.pk()]).
			OrderByAsc(target.Table + "." + targetPK), nil

	default:
		return qb.
			Where(rel.ForeignKey, query.OpEqual, record[b.pk()]).
			OrderByAsc(targetPK), nil
	}
}

// renderAll renders records in order
func (b *base) renderAll(ctx context.Context, q query.Querier, records []map[string]interface{}) ([]*shape.Object, error) {
	out := make([]*shape.Object, 0, len(records))
	for _, record := range records {
		obj, err := b.output(ctx, q, record)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
