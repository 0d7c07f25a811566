package adapter

import (
	"context"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

// Catalog is the read-only slice of the comic catalog the payment flow needs.
// Unknown comics are reported as domain.ErrNotFound.
type Catalog interface {
	GetComic(ctx context.Context, comicID string) (*model.Comic, error)
	GetComicPrice(ctx context.Context, comicID string) (int64, error)
	IsFree(ctx context.Context, comicID string) (bool, error)
	Exists(ctx context.Context, comicID string) (bool, error)
}
