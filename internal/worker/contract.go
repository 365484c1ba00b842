package worker

import (
	"context"
	"time"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/schema"
)

// Queue is the stream surface the consume and claim loops drive.
type Queue interface {
	XReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]db.StreamMessage, error)
	XAck(ctx context.Context, stream, group string, ids ...string) error
	XAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string, count int64) ([]db.StreamMessage, string, error)
}

// AckStore writes reload acknowledgements.
type AckStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Subscriber delivers reload broadcasts.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) error
}

// SchemaCache is the worker-local layout cache plus the ANN build entry
// point. A layout miss triggers one synchronous rebuild inside Layout; a
// second miss surfaces as an error.
type SchemaCache interface {
	Layout(ctx context.Context, indexID string) (schema.Layout, error)
	InvalidateAll()
	BuildANNIndex(ctx context.Context, indexID, fieldName string) error
}

// TransformerSource resolves transformer declarations by id.
type TransformerSource interface {
	Get(ctx context.Context, id string) (transformer.Transformer, error)
}
