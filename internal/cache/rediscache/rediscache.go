package rediscache

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

const (
	DefaultPackagesKey = "delivery-tracker:packages"
	maxCASAttempts     = 10
)

var ErrContention = errors.New("redis package store: too much contention")

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// PackageStore keeps the package map in one redis hash: field = delivery id,
// value = JSON of models.TrackedPackages.
type PackageStore struct {
	c   *redis.Client
	key string
}

func NewPackageStore(c *redis.Client, key string) *PackageStore {
	if key == "" {
		key = DefaultPackagesKey
	}
	return &PackageStore{c: c, key: key}
}

func (s *PackageStore) Snapshot(ctx context.Context) (models.PackageMap, error) {
	raw, err := s.c.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis hgetall")
	}
	return decode(raw)
}

// Update applies fn with optimistic locking (WATCH/MULTI). Only fields that
// changed are written, so concurrent writers of different ids do not clobber
// each other.
func (s *PackageStore) Update(ctx context.Context, fn func(models.PackageMap) models.PackageMap) error {
	for i := 0; i < maxCASAttempts; i++ {
		err := s.c.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGetAll(ctx, s.key).Result()
			if err != nil {
				return errors.Wrap(err, "redis hgetall")
			}
			cur, err := decode(raw)
			if err != nil {
				return err
			}

			next := fn(cur.Clone())

			set := map[string]any{}
			var del []string
			for id, v := range next {
				if old, ok := cur[id]; ok && reflect.DeepEqual(old, v) {
					continue
				}
				b, err := json.Marshal(v)
				if err != nil {
					return errors.Wrap(err, "marshal packages")
				}
				set[id] = b
			}
			for id := range cur {
				if _, ok := next[id]; !ok {
					del = append(del, id)
				}
			}
			if len(set) == 0 && len(del) == 0 {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				if len(set) > 0 {
					p.HSet(ctx, s.key, set)
				}
				if len(del) > 0 {
					p.HDel(ctx, s.key, del...)
				}
				return nil
			})
			return err
		}, s.key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "redis package update")
		}
		return nil
	}
	return ErrContention
}

func decode(raw map[string]string) (models.PackageMap, error) {
	out := make(models.PackageMap, len(raw))
	for id, v := range raw {
		var tp models.TrackedPackages
		if err := json.Unmarshal([]byte(v), &tp); err != nil {
			return nil, errors.Wrapf(err, "decode packages of %s", id)
		}
		out[id] = tp
	}
	return out, nil
}
