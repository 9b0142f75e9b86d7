package crud

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// PatchController applies partial updates
type PatchController struct {
	*base
}

// Input returns the schema payloads are decoded with
func (p *PatchController) Input() *shape.Schema {
	return p.set.Patch
}

// Output returns the schema of the rendered record
func (p *PatchController) Output() *shape.Schema {
	return p.set.Output
}

// Patch overwrites the present, non-null fields of the record addressed by
// key and replaces the associations of every present relationship. Absent
// fields are left untouched.
func (p *PatchController) Patch(ctx context.Context, caller access.Caller, key string, input map[string]interface{}) (*shape.Object, error) {
	value, ok := scanKey(p.entity.LookupField(), key)
	if !ok {
		return nil, ErrNotFound
	}

	var out *shape.Object
	var pk interface{}

	err := p.controllers.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		record, err := p.find(ctx, tx, caller, value)
		if err != nil {
			return err
		}
		pk = record[p.pk()]

		record, err = p.updateInTx(ctx, tx, caller, record, input)
		if err != nil {
			return err
		}
		out, err = p.output(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.controllers.publish(ChangeEvent{Entity: p.entity.Name, Operation: schema.OpPatch.String(), Key: pk, Record: out})
	return out, nil
}

// updateInTx updates a loaded record within a transaction and returns it as
// stored
func (p *PatchController) updateInTx(
	ctx context.Context,
	tx *sql.Tx,
	caller access.Caller,
	record map[string]interface{},
	input map[string]interface{},
) (map[string]interface{}, error) {
	pk := record[p.pk()]
	values := scalarValues(p.set.Patch, input, true)

	ids := identifiers(p.set.Patch, input)
	if err := p.resolveOnes(ctx, caller, ids, values); err != nil {
		return nil, err
	}
	if err := p.resolveForeignKeys(ctx, tx, caller, ids, values); err != nil {
		return nil, err
	}

	if len(values) > 0 {
		_, err := p.query(tx).Where(p.pk(), query.OpEqual, pk).Update(ctx, values)
		if err != nil {
			return nil, fmt.Errorf("failed to update %s: %w", p.entity.Name, ConvertDBError(err))
		}
	}

	if err := p.attachMany(ctx, tx, caller, ids, record); err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return record, nil
	}
	return p.findByPK(ctx, tx, pk)
}
