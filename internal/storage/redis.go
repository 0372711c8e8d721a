package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/leansocial/shell/internal/crypto"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/session"
	"github.com/redis/go-redis/v9"
)

var (
	_ SessionStore = (*RedisStore)(nil)
	_ Watcher      = (*RedisStore)(nil)
)

// RedisStore keeps encrypted sessions in Redis and announces every write on
// a per-profile pub/sub channel so other shells sharing the profile follow
// sign-in and sign-out.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	encryptor crypto.Encryptor
	origin    string
}

type redisEvent struct {
	Origin  string `json:"origin"`
	Deleted bool   `json:"deleted,omitempty"`
}

// NewRedisStore wraps an existing client
func NewRedisStore(client redis.UniversalClient, keyPrefix string, encryptor crypto.Encryptor) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		encryptor: encryptor,
		origin:    uuid.NewString(),
	}, nil
}

// DialRedis connects to addr and verifies the connection with PING
func DialRedis(ctx context.Context, opts *redis.Options, keyPrefix string, encryptor crypto.Encryptor) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, keyPrefix, encryptor)
}

func (s *RedisStore) key(profile string) string {
	return s.keyPrefix + profile
}

func (s *RedisStore) channel(profile string) string {
	return s.keyPrefix + profile + ":events"
}

func (s *RedisStore) Load(ctx context.Context, profile string) (*session.Snapshot, error) {
	sealed, err := s.client.Get(ctx, s.key(profile)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	return openSnapshot(s.encryptor, sealed)
}

func (s *RedisStore) Save(ctx context.Context, profile string, snap *session.Snapshot) error {
	sealed, err := sealSnapshot(s.encryptor, snap)
	if err != nil {
		return err
	}
	return s.write(ctx, profile, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, s.key(profile), sealed, 0)
	}, false)
}

func (s *RedisStore) Delete(ctx context.Context, profile string) error {
	return s.write(ctx, profile, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, s.key(profile))
	}, true)
}

func (s *RedisStore) write(ctx context.Context, profile string, op func(redis.Pipeliner), deleted bool) error {
	payload, err := json.Marshal(redisEvent{Origin: s.origin, Deleted: deleted})
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		op(pipe)
		pipe.Publish(ctx, s.channel(profile), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session to redis: %w", err)
	}
	return nil
}

// Watch subscribes to the profile's channel. The returned channel is closed
// when ctx is done.
func (s *RedisStore) Watch(ctx context.Context, profile string) (<-chan Event, error) {
	sub := s.client.Subscribe(ctx, s.channel(profile))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel(profile), err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, ok := s.decodeEvent(ctx, profile, msg.Payload)
				if !ok {
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

func (s *RedisStore) decodeEvent(ctx context.Context, profile, payload string) (Event, bool) {
	var re redisEvent
	if err := json.Unmarshal([]byte(payload), &re); err != nil {
		log.LogWarnWithFields("storage", "Ignoring malformed session event", map[string]any{
			"profile": profile,
			"error":   err.Error(),
		})
		return Event{}, false
	}
	if re.Origin == s.origin {
		return Event{}, false
	}
	if re.Deleted {
		return Event{Profile: profile}, true
	}

	snap, err := s.Load(ctx, profile)
	if errors.Is(err, ErrSessionNotFound) {
		return Event{Profile: profile}, true
	}
	if err != nil {
		log.LogErrorWithFields("storage", "Failed to load announced session", map[string]any{
			"profile": profile,
			"error":   err.Error(),
		})
		return Event{}, false
	}
	return Event{Profile: profile, Snapshot: snap}, true
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
