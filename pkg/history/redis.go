package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tehcyx/ircc/pkg/event"
)

// RedisStore keeps history in Redis lists, one per buffer, trimmed to a
// fixed size. Every appended event is also published on "<prefix>:events"
// so other processes can follow a running client.
type RedisStore struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
	size   int
	prefix string
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, size int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if size <= 0 {
		size = DefaultSize
	}
	return &RedisStore{rdb: rdb, size: size, prefix: "ircc"}, nil
}

// WithPrefix namespaces every key, e.g. to keep tests apart.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	s.prefix = prefix
	return s
}

func (s *RedisStore) bufferKey(serverID, buffer string) string {
	return fmt.Sprintf("%s:history:%s:%s", s.prefix, serverID, bufferKey(buffer))
}

func (s *RedisStore) buffersKey(serverID string) string {
	return fmt.Sprintf("%s:server:%s:buffers", s.prefix, serverID)
}

func (s *RedisStore) eventsChannel() string {
	return s.prefix + ":events"
}

func (s *RedisStore) Append(ctx context.Context, ev event.DisplayEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := s.bufferKey(ev.ServerID, ev.Target)
	pipe := s.rdb.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(s.size-1))
	pipe.SAdd(ctx, s.buffersKey(ev.ServerID), key)
	pipe.Publish(ctx, s.eventsChannel(), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, serverID, buffer string, limit int) ([]event.DisplayEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.rdb.LRange(ctx, s.bufferKey(serverID, buffer), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	events := make([]event.DisplayEvent, 0, len(raw))
	// newest first in the list
	for i := len(raw) - 1; i >= 0; i-- {
		var ev event.DisplayEvent
		if err := json.Unmarshal([]byte(raw[i]), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *RedisStore) Forget(ctx context.Context, serverID string) error {
	setKey := s.buffersKey(serverID)
	keys, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list buffers: %w", err)
	}

	pipe := s.rdb.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	pipe.Del(ctx, setKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to forget server %s: %w", serverID, err)
	}
	return nil
}

// Subscribe follows the events appended by any client sharing this Redis.
// The channel closes when ctx is done.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan event.DisplayEvent, error) {
	s.pubsub = s.rdb.Subscribe(ctx, s.eventsChannel())
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan event.DisplayEvent)
	go func() {
		defer close(out)
		ch := s.pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev event.DisplayEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) Close() error {
	if s.pubsub != nil {
		if err := s.pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close pubsub: %w", err)
		}
	}
	return s.rdb.Close()
}
