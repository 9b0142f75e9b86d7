package crud

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// CreateController inserts new records
type CreateController struct {
	*base
}

// Input returns the schema payloads are decoded with
func (c *CreateController) Input() *shape.Schema {
	return c.set.Create
}

// Output returns the schema of the rendered record
func (c *CreateController) Output() *shape.Schema {
	return c.set.Output
}

// Create inserts a record from a decoded payload, attaches its related
// records and returns the rendered result. A relationship identifier that
// does not resolve rolls the whole insert back.
func (c *CreateController) Create(ctx context.Context, caller access.Caller, input map[string]interface{}) (*shape.Object, error) {
	var out *shape.Object
	var key interface{}

	err := c.controllers.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		record, err := c.createInTx(ctx, tx, caller, input)
		if err != nil {
			return err
		}
		key = record[c.pk()]
		out, err = c.output(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.controllers.publish(ChangeEvent{Entity: c.entity.Name, Operation: schema.OpCreate.String(), Key: key, Record: out})
	return out, nil
}

// createInTx creates a record within a transaction
func (c *CreateController) createInTx(
	ctx context.Context,
	tx *sql.Tx,
	caller access.Caller,
	input map[string]interface{},
) (map[string]interface{}, error) {
	values := scalarValues(c.set.Create, input, false)

	if c.entity.KeyStrategy == schema.KeyUUID {
		values[c.pk()] = uuid.New().String()
	}

	ids := identifiers(c.set.Create, input)
	if err := c.resolveOnes(ctx, caller, ids, values); err != nil {
		return nil, err
	}
	if err := c.resolveForeignKeys(ctx, tx, caller, ids, values); err != nil {
		return nil, err
	}
	if err := c.checkForeignKeys(values); err != nil {
		return nil, err
	}

	record, err := c.query(tx).Insert(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", c.entity.Name, ConvertDBError(err))
	}

	if err := c.attachMany(ctx, tx, caller, ids, record); err != nil {
		return nil, err
	}
	return record, nil
}

// checkForeignKeys requires every non-nullable foreign key column of a one
// relationship to be given, either directly or through the relationship
func (c *CreateController) checkForeignKeys(values map[string]interface{}) error {
	verr := &ValidationError{}
	for _, rel := range c.entity.Relationships {
		if rel.Cardinality != schema.One {
			continue
		}
		f, ok := c.entity.Field(rel.ForeignKey)
		if !ok || f.Nullable || c.entity.Popped(f.Name) {
			continue
		}
		if values[f.Name] == nil {
			verr.Errors = append(verr.Errors, FieldError{
				Field:   f.Name,
				Message: fmt.Sprintf("%s or %s is required", f.Name, rel.Name),
			})
		}
	}
	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}
