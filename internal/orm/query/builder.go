// Package query provides query building functionality for the restgen ORM
package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
)

// Querier is the subset of *sql.DB and *sql.Tx the builder executes against
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// QueryBuilder provides a fluent API for building SQL queries
type QueryBuilder struct {
	table   string
	dialect dialect.Dialect
	db      Querier

	columns []string
	where   *PredicateGroup
	joins   []*Join
	orderBy []string
	limit   *int
	offset  *int
}

// JoinType represents the type of SQL join
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// String returns the string representation of the join type
func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "LEFT"
	default:
		return "INNER"
	}
}

// Join represents a SQL join clause
type Join struct {
	Type      JoinType
	Table     string
	Condition string
}

// New creates a query builder for a table
func New(db Querier, d dialect.Dialect, table string) *QueryBuilder {
	validateIdentifier(table)
	return &QueryBuilder{
		table:   table,
		dialect: d,
		db:      db,
		where:   NewPredicateGroup(false),
		joins:   make([]*Join, 0),
		orderBy: make([]string, 0),
	}
}

// Table returns the table the builder selects from
func (qb *QueryBuilder) Table() string {
	return qb.table
}

// Dialect returns the dialect used to render placeholders
func (qb *QueryBuilder) Dialect() dialect.Dialect {
	return qb.dialect
}

// Select restricts the selected columns
func (qb *QueryBuilder) Select(columns ...string) *QueryBuilder {
	for _, c := range columns {
		if c != "*" && !strings.HasSuffix(c, ".*") {
			validateIdentifier(c)
		}
	}
	qb.columns = append(qb.columns, columns...)
	return qb
}

// Where adds a WHERE condition to the query
func (qb *QueryBuilder) Where(field string, op Operator, value interface{}) *QueryBuilder {
	validateIdentifier(field)
	qb.where.Add(field, op, value)
	return qb
}

// WhereIn adds a WHERE IN condition
func (qb *QueryBuilder) WhereIn(field string, values []interface{}) *QueryBuilder {
	return qb.Where(field, OpIn, values)
}

// WhereNull adds a WHERE IS NULL condition
func (qb *QueryBuilder) WhereNull(field string) *QueryBuilder {
	return qb.Where(field, OpIsNull, nil)
}

// WhereGroup adds a parenthesized predicate group
func (qb *QueryBuilder) WhereGroup(group *PredicateGroup) *QueryBuilder {
	if group != nil && !group.Empty() {
		qb.where.AddGroup(group)
	}
	return qb
}

// OrderBy adds an ORDER BY clause
func (qb *QueryBuilder) OrderBy(field string, direction string) *QueryBuilder {
	validateIdentifier(field)
	dir := strings.ToUpper(direction)
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	qb.orderBy = append(qb.orderBy, fmt.Sprintf("%s %s", field, dir))
	return qb
}

// OrderByAsc adds an ascending ORDER BY clause
func (qb *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	return qb.OrderBy(field, "ASC")
}

// Limit sets the LIMIT clause
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET clause
func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.offset = &n
	return qb
}

// Join adds a JOIN clause
func (qb *QueryBuilder) Join(joinType JoinType, table string, condition string) *QueryBuilder {
	validateIdentifier(table)
	if !isValidJoinCondition(condition) {
		panic(fmt.Sprintf("invalid join condition: %s", condition))
	}
	qb.joins = append(qb.joins, &Join{
		Type:      joinType,
		Table:     table,
		Condition: condition,
	})
	return qb
}

// InnerJoin adds an INNER JOIN clause
func (qb *QueryBuilder) InnerJoin(table string, condition string) *QueryBuilder {
	return qb.Join(InnerJoin, table, condition)
}

// ToSQL generates the SQL query and parameter bindings
func (qb *QueryBuilder) ToSQL() (string, []interface{}, error) {
	columns := qb.selectList()
	return qb.build(columns, true)
}

func (qb *QueryBuilder) selectList() string {
	if len(qb.columns) > 0 {
		return strings.Join(qb.columns, ", ")
	}
	if len(qb.joins) > 0 {
		return qb.table + ".*"
	}
	return "*"
}

func (qb *QueryBuilder) build(columns string, paginate bool) (string, []interface{}, error) {
	var sql strings.Builder
	args := make([]interface{}, 0)
	paramCounter := 1

	sql.WriteString(fmt.Sprintf("SELECT %s FROM %s", columns, qb.table))

	for _, join := range qb.joins {
		sql.WriteString(fmt.Sprintf(" %s JOIN %s ON %s",
			join.Type.String(),
			join.Table,
			join.Condition,
		))
	}

	where, err := qb.where.ToSQL(qb.dialect, &paramCounter, &args)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build condition: %w", err)
	}
	if where != "" {
		sql.WriteString(" WHERE ")
		sql.WriteString(where)
	}

	if !paginate {
		return sql.String(), args, nil
	}

	if len(qb.orderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(qb.orderBy, ", "))
	}

	if qb.limit != nil {
		sql.WriteString(" LIMIT " + bind(qb.dialect, *qb.limit, &paramCounter, &args))
	}

	if qb.offset != nil {
		sql.WriteString(" OFFSET " + bind(qb.dialect, *qb.offset, &paramCounter, &args))
	}

	return sql.String(), args, nil
}

// All executes the query and returns all matching rows
func (qb *QueryBuilder) All(ctx context.Context) ([]map[string]interface{}, error) {
	sqlStr, args, err := qb.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL: %w", err)
	}

	rows, err := qb.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	results, err := ScanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	return results, nil
}

// First executes the query and returns the first matching row
func (qb *QueryBuilder) First(ctx context.Context) (map[string]interface{}, error) {
	qb.Limit(1)
	results, err := qb.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sql.ErrNoRows
	}
	return results[0], nil
}

// Count returns the number of rows matching the filters, ignoring
// ordering and pagination
func (qb *QueryBuilder) Count(ctx context.Context) (int, error) {
	sqlStr, args, err := qb.build("COUNT(*)", false)
	if err != nil {
		return 0, fmt.Errorf("failed to generate SQL: %w", err)
	}

	var count int
	if err := qb.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	return count, nil
}

// Exists checks if any rows match the query
func (qb *QueryBuilder) Exists(ctx context.Context) (bool, error) {
	count, err := qb.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert inserts one row and returns it as stored
func (qb *QueryBuilder) Insert(ctx context.Context, values map[string]interface{}) (map[string]interface{}, error) {
	args := make([]interface{}, 0, len(values))
	paramCounter := 1

	var sqlStr string
	if len(values) == 0 {
		sqlStr = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", qb.table)
	} else {
		columns := sortedKeys(values)
		placeholders := make([]string, len(columns))
		for i, col := range columns {
			validateIdentifier(col)
			placeholders[i] = bind(qb.dialect, values[col], &paramCounter, &args)
		}
		sqlStr = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			qb.table,
			strings.Join(columns, ", "),
			strings.Join(placeholders, ", "),
		)
	}

	rows, err := qb.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results, err := ScanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sql.ErrNoRows
	}
	return results[0], nil
}

// Update sets columns on every row matching the filters and returns the
// number of affected rows
func (qb *QueryBuilder) Update(ctx context.Context, values map[string]interface{}) (int64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("no fields to update")
	}
	if len(qb.joins) > 0 {
		return 0, fmt.Errorf("update does not support joins")
	}

	args := make([]interface{}, 0, len(values))
	paramCounter := 1

	columns := sortedKeys(values)
	sets := make([]string, len(columns))
	for i, col := range columns {
		validateIdentifier(col)
		sets[i] = fmt.Sprintf("%s = %s", col, bind(qb.dialect, values[col], &paramCounter, &args))
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s", qb.table, strings.Join(sets, ", "))
	where, err := qb.where.ToSQL(qb.dialect, &paramCounter, &args)
	if err != nil {
		return 0, fmt.Errorf("failed to build condition: %w", err)
	}
	if where != "" {
		sqlStr += " WHERE " + where
	}

	result, err := qb.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Delete removes every row matching the filters and returns the number of
// deleted rows
func (qb *QueryBuilder) Delete(ctx context.Context) (int64, error) {
	if len(qb.joins) > 0 {
		return 0, fmt.Errorf("delete does not support joins")
	}

	args := make([]interface{}, 0)
	paramCounter := 1

	sqlStr := fmt.Sprintf("DELETE FROM %s", qb.table)
	where, err := qb.where.ToSQL(qb.dialect, &paramCounter, &args)
	if err != nil {
		return 0, fmt.Errorf("failed to build condition: %w", err)
	}
	if where != "" {
		sqlStr += " WHERE " + where
	}

	result, err := qb.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Clone creates a copy of the query builder
func (qb *QueryBuilder) Clone() *QueryBuilder {
	clone := &QueryBuilder{
		table:   qb.table,
		dialect: qb.dialect,
		db:      qb.db,
		columns: make([]string, len(qb.columns)),
		where:   NewPredicateGroup(false),
		joins:   make([]*Join, len(qb.joins)),
		orderBy: make([]string, len(qb.orderBy)),
	}

	copy(clone.columns, qb.columns)
	copy(clone.joins, qb.joins)
	copy(clone.orderBy, qb.orderBy)
	clone.where.Conditions = append(clone.where.Conditions, qb.where.Conditions...)
	clone.where.Groups = append(clone.where.Groups, qb.where.Groups...)

	if qb.limit != nil {
		limit := *qb.limit
		clone.limit = &limit
	}

	if qb.offset != nil {
		offset := *qb.offset
		clone.offset = &offset
	}

	return clone
}

// ScanRows scans SQL rows into a slice of maps
func ScanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func sortedKeys(values map[string]interface{}) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validateIdentifier validates that an identifier only contains safe characters
// (letters, digits, underscore, and dot for qualified names).
// Panics if invalid characters are found.
func validateIdentifier(identifier string) {
	if identifier == "" {
		panic("invalid identifier: empty")
	}
	for _, char := range identifier {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_' || char == '.') {
			panic(fmt.Sprintf("invalid identifier: %s (contains invalid character: %c)", identifier, char))
		}
	}
}

// isValidJoinCondition validates that a join condition compares
// table.column identifiers with = only, joined by AND
func isValidJoinCondition(condition string) bool {
	if !strings.Contains(condition, "=") {
		return false
	}

	for _, sub := range strings.Split(condition, " AND ") {
		operands := strings.Split(sub, "=")
		if len(operands) != 2 {
			return false
		}
		for _, token := range operands {
			parts := strings.Split(strings.TrimSpace(token), ".")
			if len(parts) != 2 {
				return false
			}
			for _, part := range parts {
				if !isValidIdentifier(part) {
					return false
				}
			}
		}
	}

	return true
}

// isValidIdentifier checks if a string is a valid SQL identifier
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for _, char := range s {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}
