package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/loom/internal/db"
)

// XAdd appends an entry to a stream, trimming approximately to maxLen when
// maxLen > 0. Returns the assigned entry id.
func (s *Store) XAdd(ctx context.Context, stream string, maxLen int64, fields map[string]string) (string, error) {
	var cmd rueidis.Completed
	if maxLen > 0 {
		partial := s.b().Xadd().Key(stream).Maxlen().Almost().
			Threshold(strconv.FormatInt(maxLen, 10)).Id("*").FieldValue()
		for k, v := range fields {
			partial = partial.FieldValue(k, v)
		}
		cmd = partial.Build()
	} else {
		partial := s.b().Xadd().Key(stream).Id("*").FieldValue()
		for k, v := range fields {
			partial = partial.FieldValue(k, v)
		}
		cmd = partial.Build()
	}

	id, err := s.do(ctx, cmd).ToString()
	if err != nil {
		return "", &db.Error{Op: db.OpXAdd, Err: err}
	}
	return id, nil
}

// XGroupCreate creates a consumer group reading the stream from the start,
// creating the stream if missing. An already existing group is not an error.
func (s *Store) XGroupCreate(ctx context.Context, stream, group string) error {
	cmd := s.b().XgroupCreate().Key(stream).Group(group).Id("0").Mkstream().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "BUSYGROUP") {
			return nil
		}
		return &db.Error{Op: db.OpXGroup, Err: err}
	}
	return nil
}

// XReadGroup reads up to count new entries for the consumer across the given
// streams, blocking up to block when no entries are pending. A timeout with
// no data returns an empty slice.
func (s *Store) XReadGroup(ctx context.Context, group, consumer string,
	streams []string, count int64, block time.Duration,
) ([]db.StreamMessage, error) {
	if len(streams) == 0 {
		return nil, nil
	}

	ids := make([]string, len(streams))
	for i := range ids {
		ids[i] = ">"
	}

	cmd := s.b().Xreadgroup().Group(group, consumer).
		Count(count).Block(block.Milliseconds()).
		Streams().Key(streams...).Id(ids...).Build()

	res, err := s.do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpXRead, Err: err}
	}

	var msgs []db.StreamMessage
	// Preserve the priority order callers passed streams in.
	for _, stream := range streams {
		for _, entry := range res[stream] {
			msgs = append(msgs, db.StreamMessage{
				Stream: stream,
				ID:     entry.ID,
				Fields: entry.FieldValues,
			})
		}
	}
	return msgs, nil
}

// XAck acknowledges processed entries.
func (s *Store) XAck(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	cmd := s.b().Xack().Key(stream).Group(group).Id(ids...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpXAck, Err: err}
	}
	return nil
}

// XAutoClaim transfers ownership of entries pending longer than minIdle to
// the given consumer. Returns the claimed entries and the next scan cursor.
func (s *Store) XAutoClaim(ctx context.Context, stream, group, consumer string,
	minIdle time.Duration, start string, count int64,
) ([]db.StreamMessage, string, error) {
	cmd := s.b().Xautoclaim().Key(stream).Group(group).Consumer(consumer).
		MinIdleTime(strconv.FormatInt(minIdle.Milliseconds(), 10)).
		Start(start).Count(count).Build()

	arr, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, "", &db.Error{Op: db.OpXClaim, Err: err}
	}
	if len(arr) < 2 {
		return nil, "", &db.Error{Op: db.OpXClaim, Err: fmt.Errorf("unexpected reply shape: %d elements", len(arr))}
	}

	cursor, err := arr[0].ToString()
	if err != nil {
		return nil, "", &db.Error{Op: db.OpXClaim, Err: err}
	}

	entries, err := arr[1].ToArray()
	if err != nil {
		return nil, "", &db.Error{Op: db.OpXClaim, Err: err}
	}

	msgs := make([]db.StreamMessage, 0, len(entries))
	for i := range entries {
		entry, err := entries[i].AsXRangeEntry()
		if err != nil {
			return nil, "", &db.Error{Op: db.OpXClaim, Err: err}
		}
		msgs = append(msgs, db.StreamMessage{
			Stream: stream,
			ID:     entry.ID,
			Fields: entry.FieldValues,
		})
	}
	return msgs, cursor, nil
}
