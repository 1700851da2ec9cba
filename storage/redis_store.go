package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"hotel-price-tracker/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "tracker:"
	defaultRedisChannel = "tracker:changes"
)

// changeNotice is published on every write so other processes can react
type changeNotice struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// RedisStore stores values under a key prefix and publishes change notices on
// a pub/sub channel.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	channel   string
	origin    string
	logger    *utils.Logger
	listeners *listenerSet

	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	Channel  string
}

// NewRedisStore connects, pings and starts listening for change notices
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *utils.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	s, err := newRedisStore(ctx, client, opts, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("Connected to Redis at %s", opts.Address)
	return s, nil
}

func newRedisStore(ctx context.Context, client *redis.Client, opts RedisOptions, logger *utils.Logger) (*RedisStore, error) {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.Channel == "" {
		opts.Channel = defaultRedisChannel
	}

	s := &RedisStore{
		client:    client,
		prefix:    opts.Prefix,
		channel:   opts.Channel,
		origin:    uuid.NewString(),
		logger:    logger,
		listeners: newListenerSet(),
	}

	s.pubsub = client.Subscribe(ctx, s.channel)
	// Wait for the subscription to be confirmed so no notice is missed
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.listen(listenCtx)
	return s, nil
}

func (s *RedisStore) listen(ctx context.Context) {
	defer s.wg.Done()
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var notice changeNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				s.logger.Warn("Ignoring malformed change notice: %v", err)
				continue
			}
			if notice.Origin == s.origin {
				continue
			}
			s.listeners.notify(notice.Keys)
		}
	}
}

func (s *RedisStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}

	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read keys: %w", err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

func (s *RedisStore) Set(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	keys := sortedKeys(values)
	payload, err := json.Marshal(changeNotice{Origin: s.origin, Keys: keys})
	if err != nil {
		return fmt.Errorf("failed to encode change notice: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pairs := make(map[string]interface{}, len(values))
		for k, v := range values {
			pairs[s.prefix+k] = v
		}
		pipe.MSet(ctx, pairs)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write keys: %w", err)
	}

	s.listeners.notify(keys)
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	payload, err := json.Marshal(changeNotice{Origin: s.origin, Keys: keys})
	if err != nil {
		return fmt.Errorf("failed to encode change notice: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, full...)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}

	s.listeners.notify(keys)
	return nil
}

func (s *RedisStore) OnChange(listener ChangeListener) func() {
	return s.listeners.add(listener)
}

// Client exposes the underlying client so other components (the notifier) can
// share the connection pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Close() error {
	s.cancel()
	_ = s.pubsub.Close()
	s.wg.Wait()
	return s.client.Close()
}
