package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase keeps the owner profile that invoices are addressed to.
type UserUseCase interface {
	RegisterOrUpdate(ctx context.Context, id, name, email string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

type userUC struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users: users,
		tm:    tm,
		log:   logger,
	}
}

func (u *userUC) RegisterOrUpdate(ctx context.Context, id, name, email string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrUpdate")()
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}

	var user *model.User
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		nu, err := model.NewUser(id, name, email)
		if err != nil {
			return err
		}

		existing, err := u.users.FindByID(ctx, tx, id)
		switch {
		case err == nil:
			// keep the original registration time
			nu.RegisteredAt = existing.RegisteredAt
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if err := u.users.Save(ctx, tx, nu); err != nil {
			u.log.Error().Err(err).Str("user_id", id).Msg("Failed to save user")
			return err
		}
		user = nu
		return nil
	})
	return user, err
}

func (u *userUC) Get(ctx context.Context, id string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	return u.users.FindByID(ctx, repository.NoTX, id)
}
