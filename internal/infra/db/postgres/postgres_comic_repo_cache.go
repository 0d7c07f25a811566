package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
	red "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
)

var (
	_ adapter.Catalog            = (*comicCatalog)(nil)
	_ repository.ComicRepository = (*comicCatalog)(nil)
)

// comicCatalog serves the Catalog port from the comics table through a Redis read-through cache.
type comicCatalog struct {
	inner repository.ComicRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewComicCatalog(inner repository.ComicRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) *comicCatalog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "ComicCatalog").Logger()
	return &comicCatalog{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func comicKey(id string) string { return fmt.Sprintf("comic:%s", id) }

func (d *comicCatalog) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Comic, error) {
	key := comicKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var c model.Comic
		if json.Unmarshal([]byte(val), &c) == nil {
			metrics.IncCacheRequest("comic", "hit")
			return &c, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Str("comic_id", id).Msg("comic cache read failed")
	}

	metrics.IncCacheRequest("comic", "miss")
	c, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(c); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("comic_id", id).Msg("comic cache write failed")
		}
	}
	return c, nil
}

// Save invalidates the cached entry before writing through.
func (d *comicCatalog) Save(ctx context.Context, tx repository.Tx, c *model.Comic) error {
	_ = d.cache.Del(ctx, comicKey(c.ID))
	return d.inner.Save(ctx, tx, c)
}

func (d *comicCatalog) GetComic(ctx context.Context, comicID string) (*model.Comic, error) {
	return d.FindByID(ctx, repository.NoTX, comicID)
}

func (d *comicCatalog) GetComicPrice(ctx context.Context, comicID string) (int64, error) {
	c, err := d.GetComic(ctx, comicID)
	if err != nil {
		return 0, err
	}
	return c.Price, nil
}

func (d *comicCatalog) IsFree(ctx context.Context, comicID string) (bool, error) {
	c, err := d.GetComic(ctx, comicID)
	if err != nil {
		return false, err
	}
	return c.IsFree, nil
}

func (d *comicCatalog) Exists(ctx context.Context, comicID string) (bool, error) {
	_, err := d.GetComic(ctx, comicID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
