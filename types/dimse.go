package types

// DIMSE Command types
const (
	CStoreRQ  = 0x0001
	CStoreRSP = 0x8001
	CGetRQ    = 0x0010
	CFindRQ   = 0x0020
	CMoveRQ   = 0x0021
	CEchoRQ   = 0x0030
	CEchoRSP  = 0x8030
	CCancelRQ = 0x0FFF
)

// Priority values for (0000,0700).
const (
	PriorityMedium = 0x0000
	PriorityHigh   = 0x0001
	PriorityLow    = 0x0002
)

// CommandDataSetType value meaning "no data set follows the command".
const NoDataSet = 0x0101

// DIMSE Status codes
const (
	StatusSuccess = 0x0000
	StatusPending = 0xFF00
	StatusCancel  = 0xFE00
	StatusFailure = 0xC000

	StatusAttributeListError    = 0x0107
	StatusProcessingFailure     = 0x0110
	StatusDuplicateSOPInstance  = 0x0111
	StatusUnrecognizedOperation = 0x0211
	StatusRefusedOutOfResources = 0xA700
	StatusDataSetMismatch       = 0xA900
	StatusCannotUnderstand      = 0xC000

	StatusWarningAttributeList   = 0x0001
	StatusCoercionOfDataElements = 0xB000
	StatusElementsDiscarded      = 0xB006
	StatusDataSetDoesNotMatchSOP = 0xB007
)

// StatusClass groups DIMSE status codes by outcome.
type StatusClass int

const (
	StatusClassSuccess StatusClass = iota
	StatusClassWarning
	StatusClassFailure
	StatusClassPending
	StatusClassCancel
)

func (c StatusClass) String() string {
	switch c {
	case StatusClassSuccess:
		return "success"
	case StatusClassWarning:
		return "warning"
	case StatusClassPending:
		return "pending"
	case StatusClassCancel:
		return "cancel"
	default:
		return "failure"
	}
}

// ClassifyStatus maps a C-STORE response status to its outcome class.
// Anything not recognized as success, warning, pending or cancel is a failure.
func ClassifyStatus(status uint16) StatusClass {
	switch {
	case status == StatusSuccess:
		return StatusClassSuccess
	case status == StatusWarningAttributeList,
		status == StatusCoercionOfDataElements,
		status == StatusElementsDiscarded,
		status == StatusDataSetDoesNotMatchSOP:
		return StatusClassWarning
	case status == StatusPending || status == 0xFF01:
		return StatusClassPending
	case status == StatusCancel:
		return StatusClassCancel
	default:
		return StatusClassFailure
	}
}

// Message represents a parsed DIMSE command
type Message struct {
	CommandField              uint16
	MessageID                 uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	RequestedSOPClassUID      string
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	MessageIDBeingRespondedTo uint16
	MoveOriginatorAETitle     string
	MoveOriginatorMessageID   uint16
	ErrorComment              string
	TransferSyntaxUID         string // Negotiated transfer syntax for associated dataset
}

// HasDataSet reports whether a data set follows the command.
func (m *Message) HasDataSet() bool {
	return m.CommandDataSetType != NoDataSet
}

// IsResponse reports whether the command field has the response bit set.
func IsResponse(command uint16) bool {
	return command&0x8000 != 0
}

// ResponseCommandFor maps a DIMSE request command to its corresponding response command.
func ResponseCommandFor(request uint16) uint16 {
	return request | 0x8000
}

// CommandName returns a short name such as "C-STORE-RQ" for logging.
func CommandName(command uint16) string {
	suffix := "-RQ"
	if IsResponse(command) {
		suffix = "-RSP"
	}
	switch command &^ 0x8000 {
	case CStoreRQ:
		return "C-STORE" + suffix
	case CGetRQ:
		return "C-GET" + suffix
	case CFindRQ:
		return "C-FIND" + suffix
	case CMoveRQ:
		return "C-MOVE" + suffix
	case CEchoRQ:
		return "C-ECHO" + suffix
	case CCancelRQ:
		return "C-CANCEL-RQ"
	default:
		return "UNKNOWN"
	}
}
