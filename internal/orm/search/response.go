package search

import (
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// TotalPagesField is the response key holding the page count
const TotalPagesField = "total_pages"

// ResponseSchema declares the search response of an entity: the page, the
// page count and the matching rows under the entity's table name. The rows
// reference outputName, which is resolved with the other schemas.
func ResponseSchema(e *schema.Entity, outputName string) *shape.Schema {
	return shape.New(e.Name+"SearchResponse", e.Name).
		Add(&shape.Field{Name: PageParam, Kind: shape.KindScalar, Type: schema.TypeInteger, Required: true}).
		Add(&shape.Field{Name: TotalPagesField, Kind: shape.KindScalar, Type: schema.TypeInteger, Required: true}).
		Add(&shape.Field{Name: e.Table, Kind: shape.KindRefList, Ref: outputName, Required: true})
}

// Response renders a search response from already rendered rows
func Response(e *schema.Entity, page, totalPages int, rows []*shape.Object) *shape.Object {
	if rows == nil {
		rows = []*shape.Object{}
	}
	out := shape.NewObject()
	out.Set(PageParam, page)
	out.Set(TotalPagesField, totalPages)
	out.Set(e.Table, rows)
	return out
}
