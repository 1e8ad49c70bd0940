package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomstore/interfaces"
	"github.com/caio-sobreiro/dicomstore/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEchoService_HandleDIMSE(t *testing.T) {
	service := NewEchoService(quietLogger())

	tests := []struct {
		name string
		id   uint16
	}{
		{"first message", 1},
		{"large message id", 65535},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsp, data, err := service.HandleDIMSE(context.Background(), &types.Message{
				CommandField:        types.CEchoRQ,
				MessageID:           tt.id,
				AffectedSOPClassUID: types.VerificationSOPClass,
				CommandDataSetType:  types.NoDataSet,
			}, nil)
			require.NoError(t, err)
			assert.Nil(t, data)
			assert.Equal(t, uint16(types.CEchoRSP), rsp.CommandField)
			assert.Equal(t, tt.id, rsp.MessageIDBeingRespondedTo)
			assert.Equal(t, uint16(types.StatusSuccess), rsp.Status)
			assert.Equal(t, types.VerificationSOPClass, rsp.AffectedSOPClassUID)
			assert.False(t, rsp.HasDataSet())
		})
	}
}

func TestEchoService_HealthCheck(t *testing.T) {
	service := NewEchoService(nil)
	assert.NoError(t, service.HealthCheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, service.HealthCheck(ctx), context.Canceled)
}

func TestRegistry_RoutesByCommand(t *testing.T) {
	registry := NewRegistry(quietLogger())
	registry.RegisterHandler(types.CEchoRQ, NewEchoService(quietLogger()))

	var got *types.Message
	registry.RegisterHandler(types.CStoreRQ, interfaces.ServiceHandlerFunc(func(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
		got = msg
		return NewCStoreResponse(msg, types.StatusSuccess, ""), nil, nil
	}))

	assert.Equal(t, []uint16{types.CStoreRQ, types.CEchoRQ}, registry.RegisteredCommands())
	assert.True(t, registry.HasHandler(types.CEchoRQ))

	req := &types.Message{CommandField: types.CStoreRQ, MessageID: 3, AffectedSOPInstanceUID: "1.2"}
	rsp, _, err := registry.HandleDIMSE(context.Background(), req, []byte{0})
	require.NoError(t, err)
	assert.Same(t, req, got)
	assert.Equal(t, uint16(types.CStoreRSP), rsp.CommandField)
	assert.Equal(t, "1.2", rsp.AffectedSOPInstanceUID)
}

func TestRegistry_UnknownCommandIsUnrecognizedOperation(t *testing.T) {
	registry := NewRegistry(quietLogger())
	registry.RegisterHandler(types.CFindRQ, NewEchoService(nil))
	registry.UnregisterHandler(types.CFindRQ)
	assert.False(t, registry.HasHandler(types.CFindRQ))

	rsp, data, err := registry.HandleDIMSE(context.Background(), &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           8,
		AffectedSOPClassUID: "1.2.840.10008.5.1.4.1.2.1.1",
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, uint16(0x8020), rsp.CommandField)
	assert.Equal(t, uint16(types.StatusUnrecognizedOperation), rsp.Status)
	assert.Equal(t, uint16(8), rsp.MessageIDBeingRespondedTo)
	assert.False(t, rsp.HasDataSet())
}

func TestRegistry_HandlerErrorPropagates(t *testing.T) {
	registry := NewRegistry(quietLogger())
	boom := errors.New("boom")
	registry.RegisterHandler(types.CStoreRQ, interfaces.ServiceHandlerFunc(func(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
		return nil, nil, boom
	}))
	_, _, err := registry.HandleDIMSE(context.Background(), &types.Message{CommandField: types.CStoreRQ}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestResponseBuilder(t *testing.T) {
	req := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              11,
		AffectedSOPClassUID:    types.CTImageStorage,
		AffectedSOPInstanceUID: "1.2.3",
	}
	rsp := NewCStoreResponse(req, types.StatusDataSetDoesNotMatchSOP, "mismatch")
	want := &types.Message{
		CommandField:              types.CStoreRSP,
		MessageIDBeingRespondedTo: 11,
		AffectedSOPClassUID:       types.CTImageStorage,
		AffectedSOPInstanceUID:    "1.2.3",
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusDataSetDoesNotMatchSOP,
		ErrorComment:              "mismatch",
	}
	if diff := cmp.Diff(want, rsp); diff != "" {
		t.Errorf("C-STORE-RSP mismatch (-want +got):\n%s", diff)
	}

	echo := NewCEchoResponse(&types.Message{MessageID: 2}, types.StatusSuccess)
	assert.Equal(t, uint16(2), echo.MessageIDBeingRespondedTo)
	assert.Equal(t, types.VerificationSOPClass, echo.AffectedSOPClassUID)

	failure := CreateErrorResponse(req, types.StatusProcessingFailure)
	assert.Equal(t, uint16(types.CStoreRSP), failure.CommandField)
	assert.Equal(t, "1.2.3", failure.AffectedSOPInstanceUID)
}
