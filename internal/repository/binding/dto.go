package binding

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	"github.com/kailas-cloud/loom/internal/domain/filter"
)

const selectColumns = `id, collection_id, transformer_id, index_id, description, ` +
	`execution_params, transformer_params, filter, status, created_at, updated_at`

// bindingArgs renders the binding as insert/update arguments, in
// selectColumns order minus the id.
func bindingArgs(b dombind.Binding) ([]any, error) {
	execJSON, err := json.Marshal(b.ExecutionParams())
	if err != nil {
		return nil, fmt.Errorf("marshal execution_params: %w", err)
	}
	transJSON, err := json.Marshal(b.TransformerParams())
	if err != nil {
		return nil, fmt.Errorf("marshal transformer_params: %w", err)
	}

	var filterJSON []byte
	if f := b.Filter(); f != nil {
		filterJSON, err = json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
	}

	return []any{
		b.CollectionID(), b.TransformerID(), b.IndexID(), b.Description(),
		execJSON, transJSON, filterJSON, string(b.Status()),
		b.CreatedAt(), b.UpdatedAt(),
	}, nil
}

// scanBinding hydrates a binding from a row in selectColumns order.
func scanBinding(row pgx.Row) (dombind.Binding, error) {
	var (
		id                   int64
		collectionID         string
		transformerID        string
		indexID              string
		description          string
		execJSON             []byte
		transJSON            []byte
		filterJSON           []byte
		status               string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(
		&id, &collectionID, &transformerID, &indexID, &description,
		&execJSON, &transJSON, &filterJSON, &status, &createdAt, &updatedAt,
	); err != nil {
		return dombind.Binding{}, err
	}

	execParams, err := paramsFromJSON(execJSON)
	if err != nil {
		return dombind.Binding{}, fmt.Errorf("decode execution_params: %w", err)
	}
	transParams, err := paramsFromJSON(transJSON)
	if err != nil {
		return dombind.Binding{}, fmt.Errorf("decode transformer_params: %w", err)
	}
	f, err := filterFromJSON(filterJSON)
	if err != nil {
		return dombind.Binding{}, fmt.Errorf("decode filter: %w", err)
	}

	return dombind.Reconstruct(
		id, collectionID, transformerID, indexID, description,
		execParams, transParams, f, dombind.Status(status), createdAt, updatedAt,
	), nil
}

func collectBindings(rows pgx.Rows) ([]dombind.Binding, error) {
	defer rows.Close()

	bindings := make([]dombind.Binding, 0)
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding row: %w", err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}
	return bindings, nil
}

func paramsFromJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// filterFromJSON parses the nullable filter column. Both SQL NULL and JSON
// null mean no filter.
func filterFromJSON(data []byte) (*filter.Filter, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var f filter.Filter
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
