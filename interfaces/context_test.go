package interfaces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomstore/types"
)

func TestAssociationContext(t *testing.T) {
	_, ok := AssociationFromContext(context.Background())
	assert.False(t, ok)

	params := &types.AssociationParameters{CallingAETitle: "MODALITY"}
	got, ok := AssociationFromContext(WithAssociation(context.Background(), params))
	require.True(t, ok)
	assert.Same(t, params, got)
}

func TestServiceHandlerFunc(t *testing.T) {
	var h ServiceHandler = ServiceHandlerFunc(func(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
		return &types.Message{CommandField: types.CEchoRSP, MessageIDBeingRespondedTo: msg.MessageID}, nil, nil
	})

	rsp, _, err := h.HandleDIMSE(context.Background(), &types.Message{MessageID: 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), rsp.MessageIDBeingRespondedTo)
}
