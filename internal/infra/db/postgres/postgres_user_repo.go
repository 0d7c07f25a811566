package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (id, name, email, registered_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET name=$2, email=$3;`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Name, u.Email, u.RegisteredAt)
	return mapExecErr(err)
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const q = `SELECT id, name, email, registered_at FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.RegisteredAt); err != nil {
		return nil, mapScanErr(err)
	}
	return &u, nil
}
