// Package user holds the account type and the repository boundary used by
// order placement and per-user statistics. Credential handling and token
// issuance live behind the fronting auth proxy and are not modeled here.
package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an account does not resolve, is deleted, or
// is blocked. Callers treat all three the same way.
var ErrNotFound = errors.New("user not found")

// Role enumerates account roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a marketplace account. Address, Phone and City feed the payment
// session as customer metadata.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Address   string
	Phone     string
	City      string
	IsDeleted bool
	IsBlocked bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the account can act on the marketplace.
func (u *User) Active() bool {
	return !u.IsDeleted && !u.IsBlocked
}

// Repository defines account lookups. Both lookups return ErrNotFound for
// missing accounts; soft-deletion flags are returned as-is for the caller
// to interpret via Active.
type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}
