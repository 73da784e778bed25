package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	experienceKeyPrefix = "bookit:experience:"
	experienceListKey   = "bookit:experiences"
)

// experienceCache is a read-through cache in front of the experience store.
// Only catalog data is cached; slot capacity always comes from the ledger.
// Redis failures degrade to the underlying repository.
type experienceCache struct {
	next   database.ExperienceRepository
	client *redis.Client
	ttl    time.Duration
}

func NewExperienceCache(next database.ExperienceRepository, client *redis.Client, ttl time.Duration) database.ExperienceRepository {
	return &experienceCache{next: next, client: client, ttl: ttl}
}

func (c *experienceCache) Create(ctx context.Context, experience *entity.Experience) error {
	if err := c.next.Create(ctx, experience); err != nil {
		return err
	}
	if err := c.client.Del(ctx, experienceListKey).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to invalidate experience list cache")
	}
	return nil
}

func (c *experienceCache) GetByID(ctx context.Context, id string) (*entity.Experience, error) {
	key := experienceKeyPrefix + id

	var cached entity.Experience
	if c.get(ctx, key, &cached) {
		return &cached, nil
	}

	experience, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, experience)
	return experience, nil
}

func (c *experienceCache) GetAll(ctx context.Context) ([]*entity.Experience, error) {
	var cached []*entity.Experience
	if c.get(ctx, experienceListKey, &cached) {
		return cached, nil
	}

	experiences, err := c.next.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, experienceListKey, experiences)
	return experiences, nil
}

func (c *experienceCache) get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Experience cache read failed")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Experience cache entry is corrupted")
		return false
	}
	return true
}

func (c *experienceCache) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		logrus.WithError(fmt.Errorf("failed to marshal cache entry: %w", err)).Warn("Experience cache write skipped")
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Experience cache write failed")
	}
}
