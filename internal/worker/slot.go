package worker

import (
	"context"

	"github.com/kailas-cloud/loom/internal/db"
)

// slot is one execution lane. It holds at most one storage connection,
// lazily created, reused across tasks and never shared with another slot.
type slot struct {
	id    int
	conns db.ConnAcquirer
	conn  db.Conn
}

func newSlot(id int, conns db.ConnAcquirer) *slot {
	return &slot{id: id, conns: conns}
}

// acquire returns the slot's connection, dialing on first use.
func (s *slot) acquire(ctx context.Context) (db.Conn, error) {
	if s.conn == nil {
		conn, err := s.conns.AcquireConn(ctx)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}
	return s.conn, nil
}

// discard drops the slot's connection so the next acquire dials fresh.
func (s *slot) discard(ctx context.Context) {
	if s.conn != nil {
		s.conn.Discard(ctx)
		s.conn = nil
	}
}

// release hands a healthy connection back to the pool on shutdown.
func (s *slot) release() {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}
