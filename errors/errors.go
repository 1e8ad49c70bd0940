// Package errors provides the typed errors shared by the association, DIMSE,
// storage and transcoding layers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrConnectionClosed                 = errors.New("dicom: connection closed")
	ErrAssociationRejected              = errors.New("dicom: association rejected")
	ErrNoAcceptablePresentationContexts = errors.New("dicom: no acceptable presentation contexts")
	ErrInvalidPDU                       = errors.New("dicom: invalid PDU")
	ErrUnsupportedTransfer              = errors.New("dicom: unsupported transfer syntax")
	ErrNoPresentationCtx                = errors.New("dicom: no suitable presentation context")
	ErrInvalidMessage                   = errors.New("dicom: invalid DIMSE message")
	ErrOperationCanceled                = errors.New("dicom: operation canceled")
	ErrTooManyContexts                  = errors.New("dicom: more than 128 presentation contexts")
	ErrInvalidDataset                   = errors.New("dicom: invalid data set")
	ErrAssociationReleased              = errors.New("dicom: association released")
	ErrResponseTimeout                  = errors.New("dicom: no response within the DIMSE timeout")
)

// AssociationRejectResult is the Result field of an A-ASSOCIATE-RJ PDU.
type AssociationRejectResult byte

const (
	RejectResultPermanent AssociationRejectResult = 0x01
	RejectResultTransient AssociationRejectResult = 0x02
)

func (r AssociationRejectResult) String() string {
	switch r {
	case RejectResultPermanent:
		return "rejected-permanent"
	case RejectResultTransient:
		return "rejected-transient"
	default:
		return "unknown"
	}
}

// AssociationError represents an association-level rejection, either received
// from the peer or about to be sent to it.
type AssociationError struct {
	Result AssociationRejectResult
	Reason AssociationRejectReason
	Source AssociationRejectSource
	Msg    string
	Err    error
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("association rejected: %s (source: %s, reason: %s)",
		e.Msg, e.Source, e.Reason)
}

// Unwrap exposes both ErrAssociationRejected and the cause.
func (e *AssociationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAssociationRejected, e.Err}
	}
	return []error{ErrAssociationRejected}
}

// AssociationRejectReason represents why an association was rejected
type AssociationRejectReason byte

const (
	RejectReasonUnknown                        AssociationRejectReason = 0x00
	RejectReasonNoReasonGiven                  AssociationRejectReason = 0x01
	RejectReasonApplicationContextNotSupported AssociationRejectReason = 0x02
	RejectReasonCallingAETitleNotRecognized    AssociationRejectReason = 0x03
	RejectReasonCalledAETitleNotRecognized     AssociationRejectReason = 0x07
)

func (r AssociationRejectReason) String() string {
	switch r {
	case RejectReasonNoReasonGiven:
		return "no-reason-given"
	case RejectReasonApplicationContextNotSupported:
		return "application-context-not-supported"
	case RejectReasonCallingAETitleNotRecognized:
		return "calling-ae-title-not-recognized"
	case RejectReasonCalledAETitleNotRecognized:
		return "called-ae-title-not-recognized"
	default:
		return "unknown"
	}
}

// AssociationRejectSource represents who rejected the association
type AssociationRejectSource byte

const (
	RejectSourceUnknown         AssociationRejectSource = 0x00
	RejectSourceServiceUser     AssociationRejectSource = 0x01
	RejectSourceServiceProvider AssociationRejectSource = 0x02
)

func (s AssociationRejectSource) String() string {
	switch s {
	case RejectSourceServiceUser:
		return "service-user"
	case RejectSourceServiceProvider:
		return "service-provider"
	default:
		return "unknown"
	}
}

// NewAssociationError creates a permanent association rejection.
func NewAssociationError(source AssociationRejectSource, reason AssociationRejectReason, msg string) *AssociationError {
	return &AssociationError{
		Result: RejectResultPermanent,
		Source: source,
		Reason: reason,
		Msg:    msg,
	}
}

// NoAcceptableContexts is the rejection sent when negotiation accepted nothing.
func NoAcceptableContexts() *AssociationError {
	return &AssociationError{
		Result: RejectResultPermanent,
		Source: RejectSourceServiceUser,
		Reason: RejectReasonNoReasonGiven,
		Msg:    "no acceptable presentation contexts",
		Err:    ErrNoAcceptablePresentationContexts,
	}
}

// DIMSEError represents a DIMSE operation error with status code
type DIMSEError struct {
	Status    uint16
	Operation string
	Msg       string
}

func (e *DIMSEError) Error() string {
	return fmt.Sprintf("DIMSE %s failed: %s (status: 0x%04X)", e.Operation, e.Msg, e.Status)
}

// NewDIMSEError creates a new DIMSE error
func NewDIMSEError(operation string, status uint16, msg string) *DIMSEError {
	return &DIMSEError{
		Operation: operation,
		Status:    status,
		Msg:       msg,
	}
}

// IsFailure returns true if the DIMSE status indicates failure
func (e *DIMSEError) IsFailure() bool {
	hi := e.Status & 0xF000
	return hi == 0xC000 || hi == 0xA000 || e.Status&0xFF00 == 0x0100 || e.Status&0xFF00 == 0x0200
}

// TimeoutError represents a timeout error
type TimeoutError struct {
	Operation string
	Duration  string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %s", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation, duration string) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  duration,
	}
}

// NewResponseTimeoutError reports a request whose response did not start
// to arrive within the DIMSE timeout. It matches ErrResponseTimeout.
func NewResponseTimeoutError(duration string) *TimeoutError {
	return &TimeoutError{
		Operation: "DIMSE response",
		Duration:  duration,
		Err:       ErrResponseTimeout,
	}
}

// NetworkError represents a network-level error
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{
		Op:  op,
		Err: err,
	}
}

// Abort sources (PS3.8 Section 9.3.8).
const (
	AbortSourceServiceUser     byte = 0x00
	AbortSourceServiceProvider byte = 0x02
)

// Abort reasons, meaningful only when the source is the service provider.
const (
	AbortReasonNotSpecified          byte = 0x00
	AbortReasonUnrecognizedPDU       byte = 0x01
	AbortReasonUnexpectedPDU         byte = 0x02
	AbortReasonUnrecognizedParameter byte = 0x04
	AbortReasonUnexpectedParameter   byte = 0x05
	AbortReasonInvalidParameterValue byte = 0x06
)

// AbortReasonName returns a readable abort reason.
func AbortReasonName(reason byte) string {
	switch reason {
	case AbortReasonNotSpecified:
		return "reason-not-specified"
	case AbortReasonUnrecognizedPDU:
		return "unrecognized-pdu"
	case AbortReasonUnexpectedPDU:
		return "unexpected-pdu"
	case AbortReasonUnrecognizedParameter:
		return "unrecognized-pdu-parameter"
	case AbortReasonUnexpectedParameter:
		return "unexpected-pdu-parameter"
	case AbortReasonInvalidParameterValue:
		return "invalid-pdu-parameter-value"
	default:
		return "unknown"
	}
}

// AbortError represents an A-ABORT PDU received
type AbortError struct {
	Source byte
	Reason byte
}

func (e *AbortError) Error() string {
	sourceStr := "unknown"
	switch e.Source {
	case AbortSourceServiceUser:
		sourceStr = "service-user"
	case AbortSourceServiceProvider:
		sourceStr = "service-provider"
	}
	return fmt.Sprintf("connection aborted by %s (reason: %s)", sourceStr, AbortReasonName(e.Reason))
}

// Unwrap lets callers test an abort with errors.Is(err, ErrConnectionClosed).
func (e *AbortError) Unwrap() error {
	return ErrConnectionClosed
}

// NewAbortError creates a new abort error
func NewAbortError(source, reason byte) *AbortError {
	return &AbortError{
		Source: source,
		Reason: reason,
	}
}

// ProtocolError is a violation by the peer that must be answered with an
// A-ABORT carrying Reason.
type ProtocolError struct {
	Reason byte
	Msg    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", AbortReasonName(e.Reason), e.Msg)
}

func (e *ProtocolError) Unwrap() error {
	return ErrInvalidPDU
}

// NewProtocolError creates a new protocol error
func NewProtocolError(reason byte, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// CodecError reports a pixel data encode or decode failure.
type CodecError struct {
	TransferSyntax string
	Op             string
	Err            error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.TransferSyntax, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// NewCodecError creates a new codec error
func NewCodecError(transferSyntax, op string, err error) *CodecError {
	return &CodecError{TransferSyntax: transferSyntax, Op: op, Err: err}
}
