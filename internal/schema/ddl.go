package schema

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/domain/record"
)

// HNSW build parameters applied to every ANN index.
const (
	hnswM              = 16
	hnswEFConstruction = 64
)

// maxIdentifierLen is the Postgres NAMEDATALEN limit. Names longer than this
// are truncated server-side, which would break IF NOT EXISTS idempotence, so
// generated names are truncated explicitly.
const maxIdentifierLen = 63

// tableDDL renders the CREATE TABLE statement for a layout.
func tableDDL(l Layout) string {
	cols := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		cols[i] = db.QuoteIdentifier(c.Name) + " " + c.SQLType
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		db.QuoteIdentifier(l.Table), strings.Join(cols, ",\n\t"))
}

// documentIndexDDL renders the secondary index on document_id.
func documentIndexDDL(table string) string {
	name := generatedIndexName(table, record.ColDocumentID, "")
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		db.QuoteIdentifier(name), db.QuoteIdentifier(table), db.QuoteIdentifier(record.ColDocumentID))
}

// annIndexDDL renders the HNSW index build statement for an embedding field.
func annIndexDDL(table string, f index.Field) (string, error) {
	opclass, err := opclassFor(f.Metric())
	if err != nil {
		return "", fmt.Errorf("field %q: %w", f.Name(), err)
	}
	name := generatedIndexName(table, f.Name(), "_hnsw")
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (%s %s) WITH (m = %d, ef_construction = %d)",
		db.QuoteIdentifier(name), db.QuoteIdentifier(table),
		db.QuoteIdentifier(f.Name()), opclass, hnswM, hnswEFConstruction), nil
}

// annIndexName exposes the generated ANN index name for introspection.
func annIndexName(table, fieldName string) string {
	return generatedIndexName(table, fieldName, "_hnsw")
}

func opclassFor(metric index.Distance) (string, error) {
	switch metric {
	case index.DistanceCosine:
		return "vector_cosine_ops", nil
	case index.DistanceL2:
		return "vector_l2_ops", nil
	case index.DistanceIP:
		return "vector_ip_ops", nil
	default:
		return "", fmt.Errorf("%w: no opclass for metric %q", domain.ErrValidation, metric)
	}
}

// generatedIndexName builds ix_<table>_<column><suffix>, truncated to the
// identifier limit so Postgres never truncates it implicitly.
func generatedIndexName(table, column, suffix string) string {
	name := "ix_" + table + "_" + column + suffix
	if len(name) <= maxIdentifierLen {
		return name
	}
	// Keep the suffix intact; it disambiguates the index kind.
	keep := maxIdentifierLen - len(suffix)
	return name[:keep] + suffix
}
