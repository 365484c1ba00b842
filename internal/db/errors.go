package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrNoRows      = errors.New("db: no rows")
	ErrDuplicate   = errors.New("db: duplicate key")
)

// SQLSTATE codes the pipeline reacts to.
const (
	SQLStateUndefinedTable  = "42P01"
	SQLStateUniqueViolation = "23505"
)

// Op constants map to SQL statement kinds and Redis command names
// for error context.
const (
	OpSelect      = "SELECT"
	OpInsert      = "INSERT"
	OpUpdate      = "UPDATE"
	OpDelete      = "DELETE"
	OpCreateTable = "CREATE TABLE"
	OpDropTable   = "DROP TABLE"
	OpCreateIndex = "CREATE INDEX"
	OpIntrospect  = "INTROSPECT"
	OpBegin       = "BEGIN"
	OpAcquire     = "ACQUIRE"

	OpDel       = "DEL"
	OpExists    = "EXISTS"
	OpExpire    = "EXPIRE"
	OpGet       = "GET"
	OpIncrBy    = "INCRBY"
	OpSet       = "SET"
	OpXAdd      = "XADD"
	OpXGroup    = "XGROUP"
	OpXRead     = "XREADGROUP"
	OpXAck      = "XACK"
	OpXClaim    = "XAUTOCLAIM"
	OpPublish   = "PUBLISH"
	OpSubscribe = "SUBSCRIBE"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsNoRows reports whether err is a pgx empty-result error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNoRows)
}

// IsUndefinedTable reports whether err is a structured Postgres
// undefined_table error (SQLSTATE 42P01). Substring checks against the
// message text are deliberately not used.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == SQLStateUndefinedTable
}

// IsUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == SQLStateUniqueViolation
}

// UndefinedRelation extracts the relation name from a 42P01 error when the
// server reported one.
func UndefinedRelation(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SQLStateUndefinedTable {
		return pgErr.TableName
	}
	return ""
}
