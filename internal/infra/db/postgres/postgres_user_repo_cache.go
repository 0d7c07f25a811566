package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
	red "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient) repository.UserRepository {
	return &userRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Hour,
	}
}

func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	_ = d.cache.Del(ctx, fmt.Sprintf("user:id:%s", u.ID))
	return d.inner.Save(ctx, tx, u)
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	key := fmt.Sprintf("user:id:%s", id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("user", "hit")
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			return &user, nil
		}
	}

	metrics.IncCacheRequest("user", "miss")
	user, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if user != nil {
		bytes, _ := json.Marshal(user)
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return user, nil
}
