package collection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
)

func configToJSON(config map[string]any) ([]byte, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

func scanCollection(row pgx.Row) (domcol.Collection, error) {
	var (
		id, description      string
		configJSON           []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &description, &configJSON, &createdAt, &updatedAt); err != nil {
		return domcol.Collection{}, err
	}

	var config map[string]any
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &config); err != nil {
			return domcol.Collection{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if config == nil {
		config = map[string]any{}
	}
	return domcol.Reconstruct(id, description, config, createdAt, updatedAt), nil
}
