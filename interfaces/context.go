package interfaces

import (
	"context"

	"github.com/caio-sobreiro/dicomstore/types"
)

type associationKey struct{}

// WithAssociation returns a context carrying the parameters of the
// association a request arrived on.
func WithAssociation(ctx context.Context, params *types.AssociationParameters) context.Context {
	return context.WithValue(ctx, associationKey{}, params)
}

// AssociationFromContext returns the association parameters stored by
// WithAssociation.
func AssociationFromContext(ctx context.Context) (*types.AssociationParameters, bool) {
	params, ok := ctx.Value(associationKey{}).(*types.AssociationParameters)
	return params, ok && params != nil
}
