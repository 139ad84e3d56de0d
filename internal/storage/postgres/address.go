package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop-orders/internal/domain/address"
)

const findAddressSQL = `SELECT id, user_id, name, phone_number, address_line1, address_line2,
	landmark, city, state, pincode, lat, lng
	FROM addresses WHERE id = $1 AND user_id = $2`

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// FindForUser returns the address when it exists and belongs to userID.
func (r *AddressRepository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*address.Address, error) {
	var a address.Address
	err := r.pool.QueryRow(ctx, findAddressSQL, id, userID).Scan(
		&a.ID, &a.UserID, &a.Name, &a.PhoneNumber, &a.AddressLine1, &a.AddressLine2,
		&a.Landmark, &a.City, &a.State, &a.Pincode, &a.Lat, &a.Lng,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("finding address %s: %w", id, err)
	}
	return &a, nil
}
