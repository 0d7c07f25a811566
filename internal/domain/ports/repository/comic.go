package repository

import (
	"context"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

// ComicRepository is the storage behind the catalog adapter.
type ComicRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Comic) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Comic, error)
}
