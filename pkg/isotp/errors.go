package isotp

import (
	"errors"
	"fmt"
)

// Return-code plane: synchronous outcomes reported to the caller of
// Send, OnFrame and Receive.
var (
	ErrIllegalArgument = errors.New("isotp: illegal argument")
	ErrOverflow        = errors.New("isotp: payload exceeds buffer capacity")
	ErrInProgress      = errors.New("isotp: a send is already in progress")
	ErrWrongSN         = errors.New("isotp: unexpected sequence number")
	ErrLength          = errors.New("isotp: invalid frame length")
	ErrNoData          = errors.New("isotp: no complete message available")
	ErrHwNotReady      = errors.New("isotp: CAN driver rejected the frame")
)

// ProtocolResult is the diagnostic plane: it records, per direction, why
// the last transfer on a Link ended abnormally. Unlike the return-code
// plane it is not returned from API calls, it is read off the Link after
// the fact (SendProtocolResult / ReceiveProtocolResult).
type ProtocolResult uint8

const (
	ResultOk ProtocolResult = iota
	ResultError
	ResultTimeoutBs
	ResultTimeoutCr
	ResultWrongSN
	ResultUnexpectedPdu
	ResultBufferOverflow
	ResultWftOverrun
)

var protocolResultDescription = map[ProtocolResult]string{
	ResultOk:             "ok",
	ResultError:          "error",
	ResultTimeoutBs:      "timeout waiting for flow control (Bs)",
	ResultTimeoutCr:      "timeout waiting for consecutive frame (Cr)",
	ResultWrongSN:        "wrong sequence number",
	ResultUnexpectedPdu:  "PDU incompatible with current state",
	ResultBufferOverflow: "buffer overflow",
	ResultWftOverrun:     "too many wait frames",
}

func (r ProtocolResult) String() string {
	if s, ok := protocolResultDescription[r]; ok {
		return s
	}
	return "unknown protocol result"
}

func (r ProtocolResult) Error() string {
	return fmt.Sprintf("isotp: %s", r.String())
}
