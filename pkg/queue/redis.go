package queue

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// DefaultRedisKey is the list consumers push their throughput samples onto.
const DefaultRedisKey = "consumer_throughput"

// RedisConfig describes how to reach the sample list.
type RedisConfig struct {
	Addrs    []string `validate:"required,min=1"`
	DB       int      `validate:"gte=0,lte=16"`
	Password string
	Key      string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// AsUniversalOptions converts the config into go-redis options.
func (rc RedisConfig) AsUniversalOptions() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:        rc.Addrs,
		DB:           rc.DB,
		Password:     rc.Password,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
		PoolSize:     rc.PoolSize,
	}
}

// Redis is a reliable list queue. Consumers LPUSH onto Key; Reserve moves the
// oldest entry onto Key:reserved; Delete removes it from there. Entries left on
// the reserved list are put back by Requeue.
type Redis struct {
	Client redis.UniversalClient
	Key    string
}

// NewRedis wraps an existing client. An empty key selects DefaultRedisKey.
func NewRedis(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{Client: client, Key: key}
}

// NewRedisFromConfig dials Redis and checks the connection.
func NewRedisFromConfig(ctx context.Context, rc RedisConfig) (*Redis, error) {
	client := redis.NewUniversalClient(rc.AsUniversalOptions())
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %v", rc.Addrs)
	}
	return NewRedis(client, rc.Key), nil
}

func (r *Redis) reservedKey() string {
	return r.Key + ":reserved"
}

func (r *Redis) Reserve(ctx context.Context, timeout time.Duration) (*Message, error) {
	var cmd *redis.StringCmd
	if timeout <= 0 {
		cmd = r.Client.RPopLPush(ctx, r.Key, r.reservedKey())
	} else {
		cmd = r.Client.BRPopLPush(ctx, r.Key, r.reservedKey(), timeout)
	}
	body, err := cmd.Result()
	if err == redis.Nil {
		return nil, ErrTimeout
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reserving from %s", r.Key)
	}
	return &Message{Body: []byte(body), handle: body}, nil
}

func (r *Redis) Delete(ctx context.Context, msg *Message) error {
	body, ok := msg.handle.(string)
	if !ok {
		body = string(msg.Body)
	}
	removed, err := r.Client.LRem(ctx, r.reservedKey(), 1, body).Result()
	if err != nil {
		return errors.Wrapf(err, "deleting from %s", r.reservedKey())
	}
	if removed == 0 {
		return errors.WithStack(ErrNotReserved)
	}
	return nil
}

func (r *Redis) Put(ctx context.Context, body []byte) error {
	if err := r.Client.LPush(ctx, r.Key, body).Err(); err != nil {
		return errors.Wrapf(err, "pushing to %s", r.Key)
	}
	return nil
}

// Flush drops both the pending and the reserved list.
func (r *Redis) Flush(ctx context.Context) (int, error) {
	pipe := r.Client.TxPipeline()
	pending := pipe.LLen(ctx, r.Key)
	reserved := pipe.LLen(ctx, r.reservedKey())
	pipe.Del(ctx, r.Key, r.reservedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrapf(err, "flushing %s", r.Key)
	}
	return int(pending.Val() + reserved.Val()), nil
}

// Requeue moves every reserved-but-undeleted entry back onto the pending list,
// oldest first, so it is delivered again.
func (r *Redis) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.Client.RPopLPush(ctx, r.reservedKey(), r.Key).Err()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrapf(err, "requeueing %s", r.reservedKey())
		}
		n++
	}
}

func (r *Redis) Close() error {
	return r.Client.Close()
}
