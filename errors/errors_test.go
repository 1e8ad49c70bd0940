package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociationError(t *testing.T) {
	err := NewAssociationError(
		RejectSourceServiceUser,
		RejectReasonCalledAETitleNotRecognized,
		"AE title mismatch",
	)

	assert.Equal(t, RejectResultPermanent, err.Result)
	assert.Equal(t, RejectSourceServiceUser, err.Source)
	assert.Equal(t, RejectReasonCalledAETitleNotRecognized, err.Reason)
	assert.Contains(t, err.Error(), "called-ae-title-not-recognized")
	assert.ErrorIs(t, err, ErrAssociationRejected)
}

func TestNoAcceptableContexts(t *testing.T) {
	err := fmt.Errorf("negotiate: %w", NoAcceptableContexts())

	assert.ErrorIs(t, err, ErrAssociationRejected)
	assert.ErrorIs(t, err, ErrNoAcceptablePresentationContexts)

	var assocErr *AssociationError
	require.ErrorAs(t, err, &assocErr)
	assert.Equal(t, RejectResultPermanent, assocErr.Result)
	assert.Equal(t, RejectSourceServiceUser, assocErr.Source)
	assert.Equal(t, RejectReasonNoReasonGiven, assocErr.Reason)
	assert.Contains(t, err.Error(), "no acceptable presentation contexts")
}

func TestDIMSEError_IsFailure(t *testing.T) {
	tests := []struct {
		name      string
		status    uint16
		isFailure bool
	}{
		{"success", 0x0000, false},
		{"pending", 0xFF00, false},
		{"warning", 0xB007, false},
		{"processing failure", 0x0110, true},
		{"unrecognized operation", 0x0211, true},
		{"out of resources", 0xA700, true},
		{"cannot understand", 0xC000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDIMSEError("C-STORE", tt.status, "test error")
			assert.Equal(t, tt.isFailure, err.IsFailure())
		})
	}
}

func TestAbortError(t *testing.T) {
	err := NewAbortError(AbortSourceServiceProvider, AbortReasonUnexpectedPDU)
	assert.Equal(t, "connection aborted by service-provider (reason: unexpected-pdu)", err.Error())
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestProtocolError(t *testing.T) {
	err := NewProtocolError(AbortReasonUnrecognizedPDU, "unknown PDU type 0x%02x", 0x42)
	assert.Equal(t, "protocol error (unrecognized-pdu): unknown PDU type 0x42", err.Error())
	assert.ErrorIs(t, err, ErrInvalidPDU)

	var perr *ProtocolError
	require.ErrorAs(t, fmt.Errorf("read: %w", err), &perr)
	assert.Equal(t, AbortReasonUnrecognizedPDU, perr.Reason)
}

func TestCodecError(t *testing.T) {
	err := NewCodecError("1.2.840.10008.1.2.5", "decode", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "decode 1.2.840.10008.1.2.5")
}

func TestNetworkError(t *testing.T) {
	err := NewNetworkError("read", io.EOF)
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, "network error during read: EOF", err.Error())

	var timeout interface{ Timeout() bool }
	require.ErrorAs(t, NewTimeoutError("dimse", "30s"), &timeout)
	assert.True(t, timeout.Timeout())
}

func TestResponseTimeoutError(t *testing.T) {
	err := fmt.Errorf("C-STORE 1.2.3: %w", NewResponseTimeoutError("100ms"))
	assert.ErrorIs(t, err, ErrResponseTimeout)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "timeout: DIMSE response exceeded 100ms", timeoutErr.Error())

	assert.NotErrorIs(t, NewTimeoutError("read PDU", "30s"), ErrResponseTimeout)
}
