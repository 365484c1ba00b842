package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RelationalStore is the Postgres facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type RelationalStore interface {
	Pinger
	Querier
	TxBeginner
	Introspector
	ConnAcquirer
	Reset()
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Querier is the narrow SQL surface shared by pools, connections and
// transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Conn is a storage connection pinned to a single holder until released.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Release returns the connection to its pool.
	Release()
	// Discard closes the underlying connection before releasing it, so the
	// next acquire dials fresh.
	Discard(ctx context.Context)
}

// ConnAcquirer pins dedicated connections for exclusive use, e.g. one per
// worker slot.
type ConnAcquirer interface {
	AcquireConn(ctx context.Context) (Conn, error)
}

// Column describes one column of an existing table.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// Introspector inspects the live catalog. All lookups are scoped to the
// public schema.
type Introspector interface {
	TableExists(ctx context.Context, table string) (bool, error)
	IndexExists(ctx context.Context, table, name string) (bool, error)
	TableColumns(ctx context.Context, table string) ([]Column, error)
}

// CacheStore is the Redis facade combining all sub-interfaces.
type CacheStore interface {
	Pinger
	KVStore
	StreamStore
	Broadcaster
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	IncrBy(ctx context.Context, key string, val int64) error
	// Expire sets a TTL; with nx only when the key has no expiry yet.
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// StreamMessage is one entry read from a stream.
type StreamMessage struct {
	Stream string
	ID     string
	Fields map[string]string
}

// StreamStore provides stream-based queue operations.
type StreamStore interface {
	XAdd(ctx context.Context, stream string, maxLen int64, fields map[string]string) (string, error)
	XGroupCreate(ctx context.Context, stream, group string) error
	XReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]StreamMessage, error)
	XAck(ctx context.Context, stream, group string, ids ...string) error
	XAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string, count int64) ([]StreamMessage, string, error)
}

// Broadcaster provides fan-out pub/sub used for worker control signals.
type Broadcaster interface {
	// Publish returns the number of subscribers that received the payload.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	// Subscribe blocks until ctx is cancelled, invoking handler per message.
	Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) error
}
