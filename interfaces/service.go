// Package interfaces contains the capability interfaces a server composes.
// Implementers provide only the ones they need.
package interfaces

import (
	"context"

	"github.com/caio-sobreiro/dicomstore/types"
)

// ServiceHandler handles one complete DIMSE request and returns the response
// command and optional response data set.
type ServiceHandler interface {
	HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error)
}

// ServiceHandlerFunc adapts a function to ServiceHandler.
type ServiceHandlerFunc func(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error)

func (f ServiceHandlerFunc) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	return f(ctx, msg, data)
}

// AssociationHandler observes the association lifecycle. Returning an error
// from AssociationRequested rejects the association; an
// *errors.AssociationError selects the rejection result, source and reason.
type AssociationHandler interface {
	AssociationRequested(ctx context.Context, params *types.AssociationParameters) error
	AssociationClosed(ctx context.Context, params *types.AssociationParameters, err error)
}

// ErrorReporter receives errors that end an association or a request.
type ErrorReporter interface {
	ReportError(ctx context.Context, params *types.AssociationParameters, err error)
}
