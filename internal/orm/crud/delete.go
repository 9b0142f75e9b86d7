package crud

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
)

// DeleteController removes records
type DeleteController struct {
	*base
}

// Delete removes the record addressed by key and returns the number of
// deleted rows. Association rows that reference the record on either side
// are removed in the same transaction.
func (d *DeleteController) Delete(ctx context.Context, caller access.Caller, key string) (int64, error) {
	value, ok := scanKey(d.entity.LookupField(), key)
	if !ok {
		return 0, ErrNotFound
	}

	var deleted int64
	var pk interface{}

	err := d.controllers.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		record, err := d.find(ctx, tx, caller, value)
		if err != nil {
			return err
		}
		pk = record[d.pk()]

		deleted, err = d.deleteInTx(ctx, tx, pk)
		return err
	})
	if err != nil {
		return 0, err
	}

	d.controllers.publish(ChangeEvent{Entity: d.entity.Name, Operation: schema.OpDelete.String(), Key: pk})
	return deleted, nil
}

// deleteInTx deletes a record within a transaction
func (d *DeleteController) deleteInTx(ctx context.Context, tx *sql.Tx, pk interface{}) (int64, error) {
	for _, link := range d.associations() {
		if _, err := d.table(tx, link.table).Where(link.column, query.OpEqual, pk).Delete(ctx); err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", link.table, ConvertDBError(err))
		}
	}

	deleted, err := d.query(tx).Where(d.pk(), query.OpEqual, pk).Delete(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", d.entity.Name, ConvertDBError(err))
	}
	if deleted == 0 {
		return 0, ErrNotFound
	}
	return deleted, nil
}

type association struct {
	table  string
	column string
}

// associations lists the association table columns that hold this entity's
// primary key, from its own many-to-many relationships and from those of
// other entities targeting it
func (d *DeleteController) associations() []association {
	var links []association
	seen := make(map[association]bool)
	add := func(a association) {
		if !seen[a] {
			seen[a] = true
			links = append(links, a)
		}
	}

	for _, rel := range d.entity.Relationships {
		if rel.IsManyToMany() {
			add(association{table: rel.JoinTable, column: rel.JoinColumn})
		}
	}
	for _, other := range d.controllers.engine.Registry().All() {
		for _, rel := range other.Relationships {
			if rel.IsManyToMany() && rel.Target == d.entity.Name {
				add(association{table: rel.JoinTable, column: rel.InverseColumn})
			}
		}
	}
	return links
}
