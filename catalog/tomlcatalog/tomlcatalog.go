// Package tomlcatalog reads a schema.Provider's table catalog from a
// TOML file, the way internal/parser/toml reads a migration schema:
// a dialect-agnostic document decoded with BurntSushi/toml and
// converted into the target representation (spec §4.2, §6.2).
package tomlcatalog

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"mlql/schema"
)

// catalogFile is the top-level TOML document:
//
//	[[tables]]
//	name = "users"
//	  [[tables.columns]]
//	  name = "id"
//	  type = "int64"
//	  nullable = false
type catalogFile struct {
	Tables []tomlTable `toml:"tables"`
}

type tomlTable struct {
	Name    string       `toml:"name"`
	Columns []tomlColumn `toml:"columns"`
}

type tomlColumn struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Nullable bool   `toml:"nullable"`
}

// Catalog is a schema.Provider backed by a parsed TOML file.
type Catalog struct {
	tables map[string]schema.TableSchema
}

// ParseFile opens path and parses it as a TOML catalog file.
func ParseFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tomlcatalog: open file %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a TOML catalog document from r.
func Parse(r io.Reader) (*Catalog, error) {
	var cf catalogFile
	if _, err := toml.NewDecoder(r).Decode(&cf); err != nil {
		return nil, fmt.Errorf("tomlcatalog: decode error: %w", err)
	}

	tables := make(map[string]schema.TableSchema, len(cf.Tables))
	for _, t := range cf.Tables {
		cols := make([]schema.ColumnInfo, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = schema.ColumnInfo{
				Name:     c.Name,
				DataType: dataType(c.Type),
				Nullable: c.Nullable,
			}
		}
		tables[t.Name] = schema.TableSchema{Name: t.Name, Columns: cols}
	}
	return &Catalog{tables: tables}, nil
}

// GetTableSchema implements schema.Provider.
func (c *Catalog) GetTableSchema(name string) (schema.TableSchema, error) {
	ts, ok := c.tables[name]
	if !ok {
		return schema.TableSchema{}, schema.NewTableNotFound(name)
	}
	return ts, nil
}

// Tables returns every table schema this catalog parsed, letting a
// caller rebuild the same tables into a different schema.Provider (the
// CLI's --inline-schema flag folds a parsed document into catalog.Static
// rather than keeping this type around).
func (c *Catalog) Tables() []schema.TableSchema {
	out := make([]schema.TableSchema, 0, len(c.tables))
	for _, ts := range c.tables {
		out = append(out, ts)
	}
	return out
}

// dataType maps a catalog file's free-text type string onto the coarse
// tag set of spec §4.2; anything unrecognized maps to schema.Other
// rather than failing the whole file over one unexpected column type.
func dataType(t string) schema.DataType {
	switch t {
	case "int32":
		return schema.Int32
	case "int64":
		return schema.Int64
	case "float", "float32":
		return schema.Float32
	case "double", "float64":
		return schema.Float64
	case "string", "text", "varchar":
		return schema.String
	case "bool", "boolean":
		return schema.Bool
	case "date":
		return schema.Date
	case "timestamp", "datetime":
		return schema.Timestamp
	case "decimal", "numeric":
		return schema.Decimal
	default:
		return schema.Other
	}
}
