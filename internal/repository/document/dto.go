package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
)

func metaToJSON(meta map[string]any) ([]byte, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}
	return data, nil
}

func scanDocument(row pgx.Row) (domdoc.Document, error) {
	var (
		id                   uuid.UUID
		collectionID         string
		content, title       string
		metaJSON             []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &collectionID, &content, &title, &metaJSON, &createdAt, &updatedAt); err != nil {
		return domdoc.Document{}, err
	}

	var meta map[string]any
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return domdoc.Document{}, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	return domdoc.Reconstruct(id, collectionID, content, title, meta, createdAt, updatedAt), nil
}

func collectDocuments(rows pgx.Rows) ([]domdoc.Document, error) {
	defer rows.Close()

	docs := make([]domdoc.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
