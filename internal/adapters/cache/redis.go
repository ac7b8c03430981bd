package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const keyPrefix = "polypnl:result:"

// Redis es un ports.ResultCache respaldado por Redis. Los snapshots se guardan
// como JSON, así que cada Get devuelve una copia independiente.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis crea la caché sobre un cliente existente.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Dial parsea la URL (redis://host:port/db), hace ping y devuelve la caché.
func Dial(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache.Dial: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache.Dial: ping: %w", err)
	}
	return NewRedis(client, ttl), nil
}

// Get lee y decodifica el snapshot. Una clave ausente no es un error.
func (r *Redis) Get(ctx context.Context, key string) (domain.Result, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Result{}, false, nil
	}
	if err != nil {
		return domain.Result{}, false, fmt.Errorf("cache.Redis.Get: %w", err)
	}

	var res domain.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return domain.Result{}, false, fmt.Errorf("cache.Redis.Get: unmarshal %s: %w", key, err)
	}
	return res, true, nil
}

// Put serializa el snapshot con el TTL configurado (0 = sin expiración).
func (r *Redis) Put(ctx context.Context, key string, res domain.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache.Redis.Put: marshal: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache.Redis.Put: %w", err)
	}
	return nil
}

// Close cierra el cliente.
func (r *Redis) Close() error {
	return r.client.Close()
}
