// Package catalog provides ready-to-use schema.Provider implementations:
// an in-memory map for tests and fixtures, plus file- and
// database-backed adapters in the tomlcatalog and mysqlcatalog
// subpackages (spec §4.2, §6.2 — Schema Provider is an external
// collaborator's boundary, not part of the compiler's own logic).
package catalog

import "mlql/schema"

// Static is a schema.Provider backed by an in-memory map, useful for
// tests, fixtures, and callers that already have the full catalog in
// hand (spec §4.2's "no caching is contractually required").
type Static struct {
	tables map[string]schema.TableSchema
}

// NewStatic builds a Static provider from a set of table schemas keyed
// by their own Name field.
func NewStatic(tables ...schema.TableSchema) *Static {
	m := make(map[string]schema.TableSchema, len(tables))
	for _, t := range tables {
		m[t.Name] = t
	}
	return &Static{tables: m}
}

// GetTableSchema implements schema.Provider.
func (s *Static) GetTableSchema(name string) (schema.TableSchema, error) {
	ts, ok := s.tables[name]
	if !ok {
		return schema.TableSchema{}, schema.NewTableNotFound(name)
	}
	return ts, nil
}
