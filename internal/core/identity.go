package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type ownerKey struct{}

// ErrNoOwner is returned when a request carries no signed-in identity.
var ErrNoOwner = errors.New("no authenticated owner")

// WithOwner returns a context scoped to the given user.
func WithOwner(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerKey{}, id)
}

// OwnerFrom extracts the user stored by WithOwner.
func OwnerFrom(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(ownerKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoOwner
	}
	return id, nil
}
