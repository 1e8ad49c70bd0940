// Package services provides the DIMSE service implementations of the
// storage SCP: verification (C-ECHO) and storage (C-STORE).
package services

import (
	"context"
	"log/slog"

	"github.com/caio-sobreiro/dicomstore/types"
)

// EchoService handles C-ECHO verification requests.
//
// C-ECHO verifies application-level communication between two AEs. It is
// stateless and always answers with success.
type EchoService struct {
	logger *slog.Logger
}

// NewEchoService creates a new C-ECHO service instance.
func NewEchoService(logger *slog.Logger) *EchoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EchoService{logger: logger}
}

// HandleDIMSE processes a C-ECHO request and returns a success response.
//
// This method implements the interfaces.ServiceHandler interface.
func (s *EchoService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	s.logger.DebugContext(ctx, "Processing C-ECHO request",
		"message_id", msg.MessageID,
		"affected_sop_class", msg.AffectedSOPClassUID)

	response := NewCEchoResponse(msg, types.StatusSuccess)

	s.logger.InfoContext(ctx, "C-ECHO request successful",
		"message_id", msg.MessageID)
	return response, nil, nil
}

// HealthCheck verifies that the echo service is operational.
func (s *EchoService) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}
