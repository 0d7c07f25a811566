//go:build !integration

package postgres

import (
	"context"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	red "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerComicRepo mocks the database repository that the catalog wraps.
type mockInnerComicRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, c *model.Comic) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Comic, error)
}

func (m *mockInnerComicRepo) Save(ctx context.Context, tx repository.Tx, c *model.Comic) error {
	return m.SaveFunc(ctx, tx, c)
}
func (m *mockInnerComicRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Comic, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

// mockInnerUserRepo mocks the database repository that the User decorator wraps.
type mockInnerUserRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
}

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
