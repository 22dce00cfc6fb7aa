// Package rostercache puts a Redis read-through cache in front of a roster
// source. Redis failures fall through to the source.
package rostercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pavelanni/gradebook/internal/model"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a cached roster is served.
const DefaultTTL = 5 * time.Minute

// Source loads sections and rosters.
type Source interface {
	GetSection(ctx context.Context, id int64) (model.Section, error)
	GetStudents(ctx context.Context, sectionID int64) ([]model.Student, error)
}

// Cache implements Source on top of another Source.
type Cache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	prefix string
}

// New connects to redisURL and wraps source.
func New(redisURL string, source Source, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(client, source, ttl), nil
}

// NewWithClient wraps source using an existing client.
func NewWithClient(client *redis.Client, source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, source: source, ttl: ttl, prefix: "gradebook:"}
}

func (c *Cache) sectionKey(id int64) string {
	return c.prefix + "section:" + strconv.FormatInt(id, 10)
}

func (c *Cache) rosterKey(sectionID int64) string {
	return c.prefix + "roster:" + strconv.FormatInt(sectionID, 10)
}

// GetSection returns a section, from cache when possible.
func (c *Cache) GetSection(ctx context.Context, id int64) (model.Section, error) {
	var sec model.Section
	if c.lookup(ctx, c.sectionKey(id), &sec) {
		return sec, nil
	}
	sec, err := c.source.GetSection(ctx, id)
	if err != nil {
		return sec, err
	}
	c.save(ctx, c.sectionKey(id), sec)
	return sec, nil
}

// GetStudents returns the roster of a section, from cache when possible.
func (c *Cache) GetStudents(ctx context.Context, sectionID int64) ([]model.Student, error) {
	var students []model.Student
	if c.lookup(ctx, c.rosterKey(sectionID), &students) {
		return students, nil
	}
	students, err := c.source.GetStudents(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	c.save(ctx, c.rosterKey(sectionID), students)
	return students, nil
}

// Invalidate drops the cached section and roster.
func (c *Cache) Invalidate(ctx context.Context, sectionID int64) error {
	if err := c.client.Del(ctx, c.sectionKey(sectionID), c.rosterKey(sectionID)).Err(); err != nil {
		return fmt.Errorf("invalidate roster %d: %w", sectionID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) lookup(ctx context.Context, key string, v any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		slog.Warn("roster cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("roster cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cache) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("roster cache write failed", "key", key, "error", err)
	}
}
