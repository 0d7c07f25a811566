package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
)

var _ repository.ComicRepository = (*comicRepo)(nil)

type comicRepo struct{ pool *pgxpool.Pool }

func NewComicRepo(pool *pgxpool.Pool) *comicRepo {
	return &comicRepo{pool: pool}
}

func (r *comicRepo) Save(ctx context.Context, tx repository.Tx, c *model.Comic) error {
	const q = `
INSERT INTO comics (id, title, price, currency, is_free)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET title=$2, price=$3, currency=$4, is_free=$5, updated_at=NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Title, c.Price, model.NormalizeCurrency(c.Currency), c.IsFree)
	return mapExecErr(err)
}

func (r *comicRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Comic, error) {
	const q = `SELECT id, title, price, currency, is_free FROM comics WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var c model.Comic
	if err := row.Scan(&c.ID, &c.Title, &c.Price, &c.Currency, &c.IsFree); err != nil {
		return nil, mapScanErr(err)
	}
	return &c, nil
}
