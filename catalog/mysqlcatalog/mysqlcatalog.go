// Package mysqlcatalog implements schema.Provider by querying a live
// MySQL server's information_schema, the way internal/introspect/mysql
// walks a database to reconstruct its schema for migration diffing
// (spec §4.2, §6.2). Unlike that introspector, this one is read-only
// and narrow: it reports exactly the columns, types, and nullability a
// compiler needs, nothing about indexes, constraints, or generation
// expressions.
package mysqlcatalog

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"mlql/schema"
)

// Catalog is a schema.Provider backed by a live MySQL connection.
// GetTableSchema queries information_schema on every call; callers that
// translate many programs against the same catalog should wrap one in
// a memoizing provider themselves (spec §4.2 "no caching is
// contractually required").
type Catalog struct {
	db *sql.DB
}

// Open connects to a MySQL server using a go-sql-driver/mysql DSN.
func Open(dsn string) (*Catalog, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error { return c.db.Close() }

// GetTableSchema implements schema.Provider.
func (c *Catalog) GetTableSchema(name string) (schema.TableSchema, error) {
	return c.GetTableSchemaContext(context.Background(), name)
}

// GetTableSchemaContext is GetTableSchema with an explicit context, for
// callers translating under a deadline (spec §5 notes cancellation is a
// caller concern, not the compiler's).
func (c *Catalog) GetTableSchemaContext(ctx context.Context, name string) (schema.TableSchema, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`, name)
	if err != nil {
		return schema.TableSchema{}, err
	}
	defer rows.Close()

	var cols []schema.ColumnInfo
	for rows.Next() {
		var colName, dataType, nullable sql.NullString
		if err := rows.Scan(&colName, &dataType, &nullable); err != nil {
			return schema.TableSchema{}, err
		}
		cols = append(cols, schema.ColumnInfo{
			Name:     colName.String,
			DataType: mapDataType(dataType.String),
			Nullable: nullable.String == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return schema.TableSchema{}, err
	}
	if len(cols) == 0 {
		return schema.TableSchema{}, schema.NewTableNotFound(name)
	}
	return schema.TableSchema{Name: name, Columns: cols}, nil
}

// mapDataType maps a MySQL information_schema.data_type value onto the
// coarse tag set of spec §4.2.
func mapDataType(t string) schema.DataType {
	switch strings.ToLower(t) {
	case "tinyint", "smallint", "mediumint", "int", "integer":
		return schema.Int32
	case "bigint":
		return schema.Int64
	case "float":
		return schema.Float32
	case "double", "double precision":
		return schema.Float64
	case "decimal", "numeric":
		return schema.Decimal
	case "date":
		return schema.Date
	case "datetime", "timestamp":
		return schema.Timestamp
	case "tinyint(1)", "bool", "boolean":
		return schema.Bool
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext":
		return schema.String
	default:
		return schema.Other
	}
}
