package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

const keyPrefix = "narmoon:plan:"

// PlanCache keeps active catalog entries in Redis for ttl. It satisfies
// service.PlanCache.
type PlanCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPlanCache(client *redis.Client, ttl time.Duration) *PlanCache {
	return &PlanCache{client: client, ttl: ttl}
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func planKey(name string) string {
	return keyPrefix + name
}

// Get returns nil, nil on a miss.
func (c *PlanCache) Get(ctx context.Context, name string) (*models.PlanDefinition, error) {
	data, err := c.client.Get(ctx, planKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get plan: %w", err)
	}
	var plan models.PlanDefinition
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode cached plan: %w", err)
	}
	return &plan, nil
}

func (c *PlanCache) Set(ctx context.Context, plan *models.PlanDefinition) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return c.client.Set(ctx, planKey(plan.PlanName), data, c.ttl).Err()
}

func (c *PlanCache) Delete(ctx context.Context, name string) error {
	return c.client.Del(ctx, planKey(name)).Err()
}
