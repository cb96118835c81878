package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type relayMessage struct {
	Instance string `json:"instance"`
	RecordID string `json:"recordId"`
}

// Refresher re-reads the store and republishes it to local subscribers.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RedisRelay fans append notifications out to every instance sharing the
// same store, so that their live subscribers see remote writes.
type RedisRelay struct {
	rdb      *redis.Client
	channel  string
	instance string
	target   Refresher
	log      *zap.Logger
}

// ConnectRedis creates a Redis client and verifies connectivity.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// NewRedisRelay relays appends on "<project>:history:appended".
func NewRedisRelay(rdb *redis.Client, project string, target Refresher, log *zap.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:      rdb,
		channel:  project + ":history:appended",
		instance: uuid.NewString(),
		target:   target,
		log:      log,
	}
}

// Announce publishes a local append.
func (r *RedisRelay) Announce(ctx context.Context, recordID string) error {
	data, err := json.Marshal(relayMessage{Instance: r.instance, RecordID: recordID})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, string(data)).Err()
}

// Run listens for remote appends until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, redisMsg.Payload)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.log.Warn("ignoring malformed relay message", zap.Error(err))
		return
	}
	if msg.Instance == r.instance {
		return
	}
	if err := r.target.Refresh(ctx); err != nil {
		r.log.Error("failed to refresh history after remote append", zap.String("id", msg.RecordID), zap.Error(err))
	}
}

func (r *RedisRelay) Close() error {
	return r.rdb.Close()
}
