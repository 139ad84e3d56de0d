// Package address exposes the saved-address read model used at checkout.
package address

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned when the address does not exist or belongs to another user.
var ErrNotFound = errors.New("address not found")

// Address is a user's saved delivery address.
type Address struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Name         string
	PhoneNumber  string
	AddressLine1 string
	AddressLine2 string
	Landmark     string
	City         string
	State        string
	Pincode      string
	Lat          *float64
	Lng          *float64
}

// Repository provides read access to saved addresses.
type Repository interface {
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*Address, error)
}
