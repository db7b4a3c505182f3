package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chattitude/chattitude/internal/models"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces all keys, default "chattitude".
	Prefix string
	// TTL expires abandoned sessions, 0 = no expiry.
	TTL time.Duration
}

// RedisStore keeps each session as a JSON value under
// "{prefix}:session:{id}" and announces every write on the pub/sub channel
// "{prefix}:changed:{id}", carrying the full updated snapshot so subscribers
// need no follow-up read. Updates run as WATCH/MULTI optimistic transactions.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisStore(cfg RedisConfig, log zerolog.Logger) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "chattitude"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL, log: log}
}

// NewRedisStoreWithClient wraps an existing client; used by tests.
func NewRedisStoreWithClient(client *redis.Client, log zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: "chattitude", log: log}
}

func (r *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *RedisStore) changedChannel(id string) string {
	return fmt.Sprintf("%s:changed:%s", r.prefix, id)
}

func (r *RedisStore) Create(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: marshal session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.sessionKey(s.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	r.publish(ctx, s.ID, data)
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, r.sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return unmarshalSession([]byte(raw))
}

func (r *RedisStore) Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	key := r.sessionKey(id)
	var updated *models.Session
	var payload []byte

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		s, err := unmarshalSession([]byte(raw))
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		s.Version++
		payload, err = json.Marshal(s)
		if err != nil {
			return fmt.Errorf("store: marshal session: %w", err)
		}
		updated = s
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			r.log.Debug().Str("session", id).Int("attempt", i+1).Msg("update lost optimistic race, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		r.publish(ctx, id, payload)
		return updated, nil
	}
	return nil, ErrConflict
}

func (r *RedisStore) Subscribe(ctx context.Context, id string) (<-chan *models.Session, error) {
	// Order matters: start listening before the initial read so a write
	// landing between the two is not missed.
	pubsub := r.client.Subscribe(ctx, r.changedChannel(id))
	cur, err := r.Get(ctx, id)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ch := make(chan *models.Session, subscriberBuffer)
	ch <- cur
	go func() {
		defer close(ch)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				s, err := unmarshalSession([]byte(msg.Payload))
				if err != nil {
					r.log.Warn().Err(err).Str("session", id).Msg("dropping undecodable change notification")
					continue
				}
				select {
				case ch <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) publish(ctx context.Context, id string, payload []byte) {
	if err := r.client.Publish(ctx, r.changedChannel(id), payload).Err(); err != nil {
		r.log.Warn().Err(err).Str("session", id).Msg("publish change notification failed")
	}
}

func unmarshalSession(data []byte) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("store: unmarshal session: %w", err)
	}
	return &s, nil
}
