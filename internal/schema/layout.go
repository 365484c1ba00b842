// Package schema manages the physical shape of index tables: dynamic table
// creation, deferred ANN index builds, and a process-local cache of record
// layouts.
package schema

import (
	"fmt"

	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/domain/record"
)

// Column describes one column of an index table.
type Column struct {
	Name     string
	SQLType  string
	Reserved bool
	// Field is set for declared columns only; reserved columns leave it zero.
	Field index.Field
}

// Layout is the ordered column list of an index table. Reserved columns come
// first, then declared fields in definition order.
type Layout struct {
	IndexID    string
	Table      string
	Columns    []Column
	Generation uint64
}

// reservedColumns are present on every index table, in this order. Records
// cascade away with their source document.
var reservedColumns = []Column{
	{Name: record.ColRecordID, SQLType: "uuid PRIMARY KEY", Reserved: true},
	{Name: record.ColDocumentID, SQLType: "uuid REFERENCES loom_documents(id) ON DELETE CASCADE", Reserved: true},
	{Name: record.ColBindingID, SQLType: "bigint", Reserved: true},
	{Name: record.ColTaskID, SQLType: "text", Reserved: true},
	{Name: record.ColCustomID, SQLType: "text", Reserved: true},
	{Name: record.ColMeta, SQLType: "jsonb", Reserved: true},
	{Name: record.ColCreatedAt, SQLType: "timestamptz NOT NULL DEFAULT now()", Reserved: true},
	{Name: record.ColUpdatedAt, SQLType: "timestamptz NOT NULL DEFAULT now()", Reserved: true},
}

// buildLayout derives the layout for an index definition.
func buildLayout(idx index.Index, generation uint64) (Layout, error) {
	cols := make([]Column, 0, len(reservedColumns)+len(idx.Fields()))
	cols = append(cols, reservedColumns...)

	for _, f := range idx.Fields() {
		sqlType, err := sqlTypeFor(f)
		if err != nil {
			return Layout{}, err
		}
		if !f.Optional() && !f.IsEmbedding() {
			sqlType += " NOT NULL"
		}
		cols = append(cols, Column{Name: f.Name(), SQLType: sqlType, Field: f})
	}

	return Layout{
		IndexID:    idx.ID(),
		Table:      idx.TableName(),
		Columns:    cols,
		Generation: generation,
	}, nil
}

// sqlTypeFor maps a declared field type to its Postgres column type.
func sqlTypeFor(f index.Field) (string, error) {
	switch f.FieldType() {
	case index.TypeInt:
		return "bigint", nil
	case index.TypeFloat:
		return "double precision", nil
	case index.TypeBool:
		return "boolean", nil
	case index.TypeString:
		return "varchar", nil
	case index.TypeText:
		return "text", nil
	case index.TypeBytes:
		return "bytea", nil
	case index.TypeDate:
		return "date", nil
	case index.TypeDateTime:
		return "timestamptz", nil
	case index.TypeTime:
		return "timetz", nil
	case index.TypeUUID:
		return "uuid", nil
	case index.TypeObject, index.TypeArray:
		return "jsonb", nil
	case index.TypeEmbedding:
		return fmt.Sprintf("vector(%d)", f.Dims()), nil
	default:
		return "", fmt.Errorf("%w: field %q has unmapped type %q",
			domain.ErrValidation, f.Name(), f.FieldType())
	}
}

// Field returns the declared field backing a column name.
func (l Layout) Field(name string) (index.Field, bool) {
	for _, c := range l.Columns {
		if c.Name == name && !c.Reserved {
			return c.Field, true
		}
	}
	return index.Field{}, false
}

// DeclaredFields returns the declared fields in layout order.
func (l Layout) DeclaredFields() []index.Field {
	var fields []index.Field
	for _, c := range l.Columns {
		if !c.Reserved {
			fields = append(fields, c.Field)
		}
	}
	return fields
}

// ColumnNames returns all column names in layout order.
func (l Layout) ColumnNames() []string {
	names := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the layout declares or reserves the column.
func (l Layout) HasColumn(name string) bool {
	for _, c := range l.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
