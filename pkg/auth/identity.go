package auth

import (
	"context"
	"slices"
)

// Identity is the authenticated caller: a user acting for one or more
// establishments.
type Identity struct {
	Subject          string
	EstablishmentIDs []string
}

// CanActFor reports whether the identity represents establishmentID.
func (i *Identity) CanActFor(establishmentID string) bool {
	return i != nil && slices.Contains(i.EstablishmentIDs, establishmentID)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
