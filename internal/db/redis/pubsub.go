package redis

import (
	"context"
	"errors"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/loom/internal/db"
)

// Publish sends a payload to all subscribers of a channel and returns the
// number of clients that received it.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	cmd := s.b().Publish().Channel(channel).Message(string(payload)).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpPublish, Err: err}
	}
	return n, nil
}

// Subscribe blocks on a dedicated connection, invoking handler for every
// message until ctx is cancelled or the client closes. Cancellation returns
// nil.
func (s *Store) Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) error {
	cmd := s.b().Subscribe().Channel(channel).Build()
	err := s.client.Receive(ctx, cmd, func(msg rueidis.PubSubMessage) {
		handler(msg.Channel, []byte(msg.Message))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, rueidis.ErrClosing) {
		return &db.Error{Op: db.OpSubscribe, Err: err}
	}
	return nil
}
