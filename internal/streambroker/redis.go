package streambroker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures a Redis-backed Broker.
type Options struct {
	// Redis is the client to issue XADD/XREAD/XRANGE against. Required.
	Redis *redis.Client
	// MaxLen caps each stream with an approximate MAXLEN trim on every
	// Publish, bounding memory for streams nobody ever reads to EOF. Zero
	// disables trimming.
	MaxLen int64
}

// RedisBroker implements Broker over Redis Streams.
type RedisBroker struct {
	redis  *redis.Client
	maxLen int64
}

var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker builds a Redis-backed Broker.
func NewRedisBroker(opts Options) (*RedisBroker, error) {
	if opts.Redis == nil {
		return nil, errors.New("streambroker: redis client is required")
	}
	return &RedisBroker{redis: opts.Redis, maxLen: opts.MaxLen}, nil
}

// Name implements health.Pinger.
func (b *RedisBroker) Name() string { return "streambroker-redis" }

// Ping implements health.Pinger.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.redis.Ping(ctx).Err()
}

// Publish implements Broker via XADD.
func (b *RedisBroker) Publish(ctx context.Context, streamKey string, payload []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"payload": payload},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	id, err := b.redis.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("streambroker: xadd %s: %w", streamKey, err)
	}
	return id, nil
}

// Read implements Broker. from=FromStart is served via XRANGE from "-",
// since FromStart needs inclusive replay from the very first entry and
// ignores block. Any other from value, FromLatest ("$") included, routes
// through XREAD, which reads only entries newer than the ID it was given
// and supports blocking.
func (b *RedisBroker) Read(ctx context.Context, streamKey string, from string, count int, block time.Duration) ([]Entry, error) {
	if from == FromStart {
		return b.readRange(ctx, streamKey, "-", count)
	}
	return b.readAfter(ctx, streamKey, from, count, block)
}

func (b *RedisBroker) readRange(ctx context.Context, streamKey, start string, count int) ([]Entry, error) {
	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = b.redis.XRangeN(ctx, streamKey, start, "+", int64(count)).Result()
	} else {
		msgs, err = b.redis.XRange(ctx, streamKey, start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("streambroker: xrange %s: %w", streamKey, err)
	}
	return toEntries(msgs), nil
}

func (b *RedisBroker) readAfter(ctx context.Context, streamKey, from string, count int, block time.Duration) ([]Entry, error) {
	args := &redis.XReadArgs{
		Streams: []string{streamKey, from},
		Block:   block,
	}
	if count > 0 {
		args.Count = int64(count)
	}
	streams, err := b.redis.XRead(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("streambroker: xread %s: %w", streamKey, err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return toEntries(streams[0].Messages), nil
}

func toEntries(msgs []redis.XMessage) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		payload, _ := m.Values["payload"].(string)
		out = append(out, Entry{ID: m.ID, Payload: []byte(payload)})
	}
	return out
}
