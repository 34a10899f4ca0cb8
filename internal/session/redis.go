package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/partnerportal/internal/codec"
)

const (
	DefaultRedisPrefix = "portal:session:"

	keyToken = "token"
	keyUser  = "user"
)

// RedisStore guarda token y user en dos keys (<prefix>token, <prefix>user)
// escritas y borradas en la misma transacción.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOptions para DialRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL de las keys; 0 = sin expiración.
	TTL time.Duration
}

// DialRedis conecta y verifica con PING.
func DialRedis(ctx context.Context, o RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("session: redis ping failed: %w", err)
	}
	s := NewRedisStore(rdb, o.Prefix)
	s.ttl = o.TTL
	return s, nil
}

// NewRedisStore envuelve un cliente existente.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Load(ctx context.Context) (Credential, error) {
	vals, err := r.client.MGet(ctx, r.key(keyToken), r.key(keyUser)).Result()
	if err != nil {
		return Credential{}, fmt.Errorf("session: redis mget: %w", err)
	}
	token, _ := vals[0].(string)
	if token == "" {
		return Credential{}, ErrNoCredential
	}
	c := Credential{Token: token}
	if raw, ok := vals[1].(string); ok && raw != "" {
		if err := codec.Unmarshal([]byte(raw), &c.User); err != nil {
			return Credential{}, fmt.Errorf("session: decode user: %w", err)
		}
	}
	return c, nil
}

func (r *RedisStore) Save(ctx context.Context, c Credential) error {
	if err := c.validate(); err != nil {
		return err
	}
	ub, err := codec.Marshal(c.User)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(keyToken), c.Token, r.ttl)
		p.Set(ctx, r.key(keyUser), string(ub), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis save: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	err := r.client.Del(ctx, r.key(keyToken), r.key(keyUser)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: redis clear: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
