package services

import (
	"context"
	"log/slog"
	"sort"

	"github.com/caio-sobreiro/dicomstore/interfaces"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Registry manages DICOM service handlers and routes incoming DIMSE requests.
//
// The registry acts as a dispatcher, routing each request to the handler
// registered for its command field. Requests without a handler are answered
// with status 0x0211 (unrecognized operation); the association stays open.
//
// Example usage:
//
//	registry := services.NewRegistry(logger)
//	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService(logger))
//	registry.RegisterHandler(types.CStoreRQ, storeService)
//
//	// Hand the registry to the server as its interfaces.ServiceHandler.
//	srv := server.New("STORESCP", registry)
type Registry struct {
	handlers map[uint16]interfaces.ServiceHandler
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. Use RegisterHandler to add handlers.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[uint16]interfaces.ServiceHandler),
		logger:   logger,
	}
}

// RegisterHandler registers a service handler for a DIMSE request command.
//
// Only one handler can be registered per command field; registering again
// replaces the previous handler.
func (r *Registry) RegisterHandler(commandField uint16, handler interfaces.ServiceHandler) {
	r.handlers[commandField] = handler
}

// UnregisterHandler removes the handler for a command. Later requests with
// this command are answered as unrecognized operations.
func (r *Registry) UnregisterHandler(commandField uint16) {
	delete(r.handlers, commandField)
}

// HasHandler returns true if a handler is registered for the given command field.
func (r *Registry) HasHandler(commandField uint16) bool {
	_, ok := r.handlers[commandField]
	return ok
}

// RegisteredCommands returns the command fields with a handler, in ascending order.
func (r *Registry) RegisteredCommands() []uint16 {
	commands := make([]uint16, 0, len(r.handlers))
	for cmd := range r.handlers {
		commands = append(commands, cmd)
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i] < commands[j] })
	return commands
}

// HandleDIMSE routes a request to its handler.
//
// This method implements interfaces.ServiceHandler, so a registry can be
// used wherever a single handler is expected.
func (r *Registry) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	r.logger.DebugContext(ctx, "Routing DIMSE message",
		"command", types.CommandName(msg.CommandField),
		"message_id", msg.MessageID)

	handler, ok := r.handlers[msg.CommandField]
	if !ok {
		r.logger.WarnContext(ctx, "No handler registered for DIMSE command",
			"command", types.CommandName(msg.CommandField),
			"command_field", msg.CommandField)
		return CreateErrorResponse(msg, types.StatusUnrecognizedOperation), nil, nil
	}
	return handler.HandleDIMSE(ctx, msg, data)
}

// CreateErrorResponse creates a standard DIMSE error response message.
//
// The response has the response command field (request | 0x8000), the
// message ID being responded to, the affected SOP class and instance of the
// request and the given status. No data set follows.
func CreateErrorResponse(req *types.Message, status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.ResponseCommandFor(req.CommandField),
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}
}
