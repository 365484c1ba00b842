package schema

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/domain/index"
)

// Store is the storage surface the registry needs: DDL execution plus
// catalog introspection.
type Store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	TableExists(ctx context.Context, table string) (bool, error)
	IndexExists(ctx context.Context, table, name string) (bool, error)
}

// IndexReader loads stored index definitions.
type IndexReader interface {
	Get(ctx context.Context, id string) (index.Index, error)
}

// Dispatcher schedules deferred maintenance work. Implementations enqueue
// onto the background band.
type Dispatcher interface {
	DispatchANNBuild(ctx context.Context, indexID, field string) (string, error)
}
