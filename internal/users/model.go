package users

import (
	"time"

	"github.com/google/uuid"
)

// User is a merchant account. BusinessName and Currency feed the pricing
// pipeline's narratives; both are optional at registration.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	BusinessName string    `json:"business_name"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RegisterParams carries everything needed to create an account. The
// password arrives already hashed; hashing lives with the auth package.
type RegisterParams struct {
	Email        string
	PasswordHash string
	BusinessName string
	Currency     string
}

// ProfileUpdate holds the mutable profile fields. Nil means keep current.
type ProfileUpdate struct {
	BusinessName *string
	Currency     *string
}
