package storage

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisPreferenceStore keeps each tab's filter in a hash under
// "{prefix}:prefs:{tab}".
type RedisPreferenceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisPreferenceStore creates a Redis-backed preference store.
func NewRedisPreferenceStore(client *redis.Client, prefix string) *RedisPreferenceStore {
	if prefix == "" {
		prefix = "inapp-report"
	}
	return &RedisPreferenceStore{client: client, prefix: prefix}
}

func (s *RedisPreferenceStore) key(tab models.Tab) string {
	return fmt.Sprintf("%s:prefs:%s", s.prefix, tab)
}

// Load reads the tab's hash. A missing hash is an empty spec.
func (s *RedisPreferenceStore) Load(ctx context.Context, tab models.Tab) (models.FilterSpec, error) {
	fields, err := s.client.HGetAll(ctx, s.key(tab)).Result()
	if err != nil {
		return models.FilterSpec{}, errors.Wrap(err, "load preferences")
	}
	return specFromFields(fields), nil
}

// Save overwrites the tab's hash in one transaction.
func (s *RedisPreferenceStore) Save(ctx context.Context, tab models.Tab, spec models.FilterSpec) error {
	key := s.key(tab)

	set := make(map[string]interface{})
	for k, v := range specToFields(spec) {
		if v != "" {
			set[k] = v
		}
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(set) > 0 {
		pipe.HSet(ctx, key, set)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "save preferences")
	}
	return nil
}
