package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/record"
	"github.com/kailas-cloud/loom/internal/metrics"
	"github.com/kailas-cloud/loom/internal/schema"
	"github.com/kailas-cloud/loom/internal/task"
	"github.com/kailas-cloud/loom/internal/transform"
)

// writeRecords persists transformer output: one table row per output row,
// values zipped against the destination field list. When the layout declares
// a text field the output left unpopulated, the source content is written
// into it.
func (w *Worker) writeRecords(ctx context.Context, s *slot, msg task.Message, fields []string, rows []transform.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if msg.IndexID == "" {
		return fmt.Errorf("%w: task %s carries no index id", domain.ErrValidation, msg.ID)
	}

	layout, err := w.schemas.Layout(ctx, msg.IndexID)
	if err != nil {
		return fmt.Errorf("layout for %q: %w", msg.IndexID, err)
	}

	docID, err := uuid.Parse(msg.Document.ID)
	if err != nil {
		return fmt.Errorf("%w: document id %q is not a uuid", domain.ErrValidation, msg.Document.ID)
	}

	valueCols := make([]string, len(fields))
	copy(valueCols, fields)
	if tagSourceText(layout, fields) {
		valueCols = append(valueCols, record.ColText)
	}

	columns := append([]string{
		record.ColRecordID,
		record.ColDocumentID,
		record.ColBindingID,
		record.ColTaskID,
	}, valueCols...)

	declared := layout.DeclaredFields()
	ins := db.NewInsert(layout.Table).Columns(columns...).OnConflictDoNothing()
	for i, row := range rows {
		if len(row) != len(fields) {
			return fmt.Errorf("%w: output row %d has %d values for %d destination fields",
				domain.ErrValidation, i, len(row), len(fields))
		}

		raw := make(map[string]any, len(valueCols))
		for j, f := range fields {
			raw[f] = row[j]
		}
		if len(valueCols) > len(fields) {
			raw[record.ColText] = msg.Document.Content
		}

		converted, err := record.ConvertValues(declared, raw)
		if err != nil {
			return fmt.Errorf("output row %d: %w", i, err)
		}

		values := make([]any, 0, len(columns))
		values = append(values, recordID(msg.ID, i), docID, msg.BindingID, msg.ID)
		for _, col := range valueCols {
			values = append(values, converted[col])
		}
		ins.Row(values...)
	}

	sql, args, err := ins.Build()
	if err != nil {
		return fmt.Errorf("build insert for %s: %w", layout.Table, err)
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, sql, args...); err != nil {
		if !db.IsUndefinedTable(err) {
			return &db.Error{Op: db.OpInsert, Err: err}
		}
		return w.retryInsert(ctx, s, msg, layout.Table, sql, args)
	}

	w.logger.Debug("Records written",
		zap.String("table", layout.Table),
		zap.Int("rows", len(rows)),
		zap.String("task_id", msg.ID),
	)
	return nil
}

// retryInsert handles the schema-visibility race: the relation was created
// but this connection cannot see it yet. Retry exactly once, after a short
// delay, on a fresh connection.
func (w *Worker) retryInsert(ctx context.Context, s *slot, msg task.Message, table, sql string, args []any) error {
	metrics.TasksRetriedTotal.WithLabelValues(msg.Name, "schema_race").Inc()
	w.logger.Warn("Insert hit a missing relation, retrying on a fresh connection",
		zap.String("table", table),
		zap.String("task_id", msg.ID),
	)

	s.discard(ctx)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.cfg.RetryDelay):
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, sql, args...); err != nil {
		if db.IsUndefinedTable(err) {
			return &domain.SchemaRaceError{Relation: table, Attempts: 2}
		}
		return &db.Error{Op: db.OpInsert, Err: err}
	}
	return nil
}

// tagSourceText reports whether the layout declares a text field the
// destination list leaves unpopulated.
func tagSourceText(layout schema.Layout, fields []string) bool {
	if _, ok := layout.Field(record.ColText); !ok {
		return false
	}
	for _, f := range fields {
		if f == record.ColText {
			return false
		}
	}
	return true
}

// recordID derives a deterministic id from the task id and row ordinal, so
// a redelivered task inserts the same keys and conflicts away.
func recordID(taskID string, row int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(taskID+":"+strconv.Itoa(row)))
}
