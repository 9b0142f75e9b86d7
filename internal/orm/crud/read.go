package crud

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// ReadController looks records up by their lookup key: the slug when the
// entity has one, otherwise the primary key
type ReadController struct {
	*base
}

// Output returns the schema of the rendered record
func (r *ReadController) Output() *shape.Schema {
	return r.set.Output
}

// Read returns the record addressed by a path key. Missing rows and rows the
// caller may not see are both ErrNotFound.
func (r *ReadController) Read(ctx context.Context, caller access.Caller, key string) (*shape.Object, error) {
	value, ok := scanKey(r.entity.LookupField(), key)
	if !ok {
		return nil, ErrNotFound
	}

	var out *shape.Object
	err := r.controllers.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		record, err := r.find(ctx, tx, caller, value)
		if err != nil {
			return err
		}
		out, err = r.output(ctx, tx, record)
		return err
	})
	return out, err
}

// ReadRaw returns the stored record for a typed lookup value. It joins the
// transaction active on ctx, if any.
func (r *ReadController) ReadRaw(ctx context.Context, caller access.Caller, value interface{}) (map[string]interface{}, error) {
	var record map[string]interface{}
	err := r.controllers.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		record, err = r.find(ctx, tx, caller, value)
		return err
	})
	return record, err
}

// find looks up one row by lookup value under access control
func (b *base) find(ctx context.Context, q query.Querier, caller access.Caller, value interface{}) (map[string]interface{}, error) {
	qb := b.query(q).Where(b.entity.LookupField().Name, query.OpEqual, value)
	access.Apply(qb, b.entity, caller, "")

	record, err := qb.First(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s %v: %w", b.entity.Name, value, ConvertDBError(err))
	}
	return record, nil
}

// findByPK reloads a row by primary key without access control
func (b *base) findByPK(ctx context.Context, q query.Querier, pk interface{}) (map[string]interface{}, error) {
	record, err := b.query(q).Where(b.pk(), query.OpEqual, pk).First(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reload %s %v: %w", b.entity.Name, pk, ConvertDBError(err))
	}
	return record, nil
}
