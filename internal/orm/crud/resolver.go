package crud

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
)

// resolve reads the target record of every supplied identifier under the
// caller's view of the target entity, in input order. Any identifier that
// does not resolve fails the whole write.
func (b *base) resolve(ctx context.Context, caller access.Caller, id identifier) ([]map[string]interface{}, error) {
	reader, err := b.controllers.reader(id.rel.Target)
	if err != nil {
		return nil, err
	}

	keys := id.keys()
	records := make([]map[string]interface{}, 0, len(keys))
	seen := make(map[interface{}]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		record, err := reader.ReadRaw(ctx, caller, key)
		if err != nil {
			if IsNotFound(err) {
				return nil, fmt.Errorf("%s %v: %w", id.rel.Name, key, ErrNotFound)
			}
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// resolveOnes resolves the one relationships of a payload into foreign key
// column values
func (b *base) resolveOnes(ctx context.Context, caller access.Caller, ids []identifier, values map[string]interface{}) error {
	for _, id := range ids {
		if id.rel.Cardinality != schema.One {
			continue
		}
		records, err := b.resolve(ctx, caller, id)
		if err != nil {
			return err
		}
		target, _ := b.controllers.engine.Registry().Get(id.rel.Target)
		values[id.rel.ForeignKey] = records[0][target.PrimaryKey().Name]
	}
	return nil
}

// resolveForeignKeys checks foreign key columns given directly in a payload
// against the caller's view of the target entity, so a raw column grants no
// more than the relationship identifier would. Relationships resolved by
// resolveOnes are skipped.
func (b *base) resolveForeignKeys(ctx context.Context, tx *sql.Tx, caller access.Caller, ids []identifier, values map[string]interface{}) error {
	resolved := make(map[string]bool, len(ids))
	for _, id := range ids {
		resolved[id.rel.Name] = true
	}

	for _, rel := range b.entity.Relationships {
		if rel.Cardinality != schema.One || resolved[rel.Name] {
			continue
		}
		value, ok := values[rel.ForeignKey]
		if !ok || value == nil {
			continue
		}
		target, err := b.controllers.base(rel.Target)
		if err != nil {
			return err
		}

		qb := target.query(tx).Where(target.pk(), query.OpEqual, value)
		access.Apply(qb, target.entity, caller, "")
		found, err := qb.Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", rel.ForeignKey, ConvertDBError(err))
		}
		if !found {
			return fmt.Errorf("%s %v: %w", rel.ForeignKey, value, ErrNotFound)
		}
	}
	return nil
}

// attachMany resolves the many relationships of a payload and replaces the
// stored associations of the record with the resolved rows
func (b *base) attachMany(ctx context.Context, tx *sql.Tx, caller access.Caller, ids []identifier, record map[string]interface{}) error {
	for _, id := range ids {
		if id.rel.Cardinality != schema.Many {
			continue
		}
		records, err := b.resolve(ctx, caller, id)
		if err != nil {
			return err
		}
		if err := b.replace(ctx, tx, id.rel, record[b.pk()], records); err != nil {
			return err
		}
	}
	return nil
}

// replace stores records as the full set of rel's targets for owner
func (b *base) replace(ctx context.Context, tx *sql.Tx, rel *schema.Relationship, owner interface{}, records []map[string]interface{}) error {
	target, _ := b.controllers.engine.Registry().Get(rel.Target)
	targetPK := target.PrimaryKey().Name
	keys := make([]interface{}, len(records))
	for i, r := range records {
		keys[i] = r[targetPK]
	}

	if rel.IsManyToMany() {
		if _, err := b.table(tx, rel.JoinTable).Where(rel.JoinColumn, query.OpEqual, owner).Delete(ctx); err != nil {
			return fmt.Errorf("failed to clear %s: %w", rel.Name, ConvertDBError(err))
		}
		for _, key := range keys {
			_, err := b.table(tx, rel.JoinTable).Insert(ctx, map[string]interface{}{
				rel.JoinColumn:    owner,
				rel.InverseColumn: key,
			})
			if err != nil {
				return fmt.Errorf("failed to associate %s %v: %w", rel.Name, key, ConvertDBError(err))
			}
		}
		return nil
	}

	detached := b.table(tx, target.Table).
		Where(rel.ForeignKey, query.OpEqual, owner).
		Where(targetPK, query.OpNotIn, keys)

	// rows whose key column is required cannot be left without an owner
	if f, ok := target.Field(rel.ForeignKey); ok && !f.Nullable {
		orphans, err := detached.Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", rel.Name, ConvertDBError(err))
		}
		if orphans {
			return &ValidationError{Errors: []FieldError{{
				Field:   rel.Name,
				Message: fmt.Sprintf("existing %s cannot be detached because %s.%s is required", rel.Name, target.Name, rel.ForeignKey),
			}}}
		}
	} else if _, err := detached.Update(ctx, map[string]interface{}{rel.ForeignKey: nil}); err != nil {
		return fmt.Errorf("failed to detach %s: %w", rel.Name, ConvertDBError(err))
	}

	if len(keys) == 0 {
		return nil
	}
	_, err := b.table(tx, target.Table).
		WhereIn(targetPK, keys).
		Update(ctx, map[string]interface{}{rel.ForeignKey: owner})
	if err != nil {
		return fmt.Errorf("failed to attach %s: %w", rel.Name, ConvertDBError(err))
	}
	return nil
}
