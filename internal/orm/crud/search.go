package crud

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/search"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// SearchController runs the compiled filter of an entity
type SearchController struct {
	*base
}

// Query returns the schema query strings are decoded with
func (s *SearchController) Query() *shape.Schema {
	return s.set.SearchQuery
}

// Output returns the schema of the search response
func (s *SearchController) Output() *shape.Schema {
	return s.set.SearchResponse
}

// Search returns one page of the rows the caller may see that match the
// decoded query values. Rows are ordered by primary key so successive pages
// partition the matching set.
func (s *SearchController) Search(ctx context.Context, caller access.Caller, values map[string]interface{}) (*shape.Object, error) {
	var out *shape.Object
	err := s.controllers.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		qb := access.Apply(s.query(tx), s.entity, caller, "")
		qb = s.set.Filter.Apply(qb, values)

		total, err := qb.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", s.entity.Table, ConvertDBError(err))
		}

		limit, page := s.set.Filter.Page(values)
		records, err := qb.OrderByAsc(s.pk()).Limit(limit).Offset(page * limit).All(ctx)
		if err != nil {
			return fmt.Errorf("failed to search %s: %w", s.entity.Table, ConvertDBError(err))
		}

		rows, err := s.renderAll(ctx, tx, records)
		if err != nil {
			return err
		}
		out = search.Response(s.entity, page, search.TotalPages(total, limit), rows)
		return nil
	})
	return out, err
}
