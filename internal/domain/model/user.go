package model

import (
	"net/mail"
	"strings"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"

	"github.com/google/uuid"
)

// User is the owner store's view of an account, used for invoices.
type User struct {
	ID           string
	Name         string
	Email        string
	RegisteredAt time.Time
}

func NewUser(id, name, email string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:           id,
		Name:         name,
		Email:        strings.ToLower(email),
		RegisteredAt: time.Now(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
