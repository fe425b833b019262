// Package isotp implements the segmentation-and-reassembly core of an
// ISO 15765-2 (ISO-TP) transport layer over CAN: a framing codec, a sender
// state machine, a receiver state machine and a cooperative poller,
// multiplexed over a logical Link identified by a pair of CAN arbitration
// IDs.
//
// The core is single-threaded and cooperative: a *Link is a self-contained
// value with no hidden global state, and it is the caller's responsibility
// to ensure only one goroutine touches a given Link at a time (see
// internal/queue and cmd/isotpd for one way to enforce that across an
// asynchronous CAN driver).
package isotp

import (
	"log/slog"
)

// SendStatus is the sender substate (spec.md §3).
type SendStatus uint8

const (
	SendIdle SendStatus = iota
	SendInProgress
	SendError
)

func (s SendStatus) String() string {
	switch s {
	case SendIdle:
		return "idle"
	case SendInProgress:
		return "in-progress"
	case SendError:
		return "error"
	default:
		return "unknown"
	}
}

// ReceiveStatus is the receiver substate (spec.md §3).
type ReceiveStatus uint8

const (
	ReceiveIdle ReceiveStatus = iota
	ReceiveInProgress
	ReceiveFull
)

func (s ReceiveStatus) String() string {
	switch s {
	case ReceiveIdle:
		return "idle"
	case ReceiveInProgress:
		return "in-progress"
	case ReceiveFull:
		return "full"
	default:
		return "unknown"
	}
}

// Link is the central entity of the core: one instance per logical ISO-TP
// endpoint pair. Buffers are caller-owned and are never resized or
// reallocated by the core; their lifetime must cover the Link's.
type Link struct {
	opts options

	sendArbitrationID uint32
	recvArbitrationID uint32

	sendBuf []byte
	recvBuf []byte

	// Sender substate.
	sendStatus    SendStatus
	sendSize      uint32
	sendOffset    uint32
	sendSN        uint8
	sendBsRemain  int32 // unlimitedSentinel means "unlimited"
	sendSTMinUs   uint32
	sendWFTCount  uint8
	sendTimerST   uint32
	sendTimerBs   uint32
	sendResult    ProtocolResult

	// Receiver substate.
	receiveStatus   ReceiveStatus
	receiveSize     uint32
	receiveOffset   uint32
	receiveSN       uint8
	receiveBsCount  uint8
	receiveTimerCr  uint32
	receiveResult   ProtocolResult

	// Scratch space for outbound frames (avoids allocation on the hot path).
	txFrame [8]byte
}

// New initializes a Link. sendBuf and recvBuf are caller-owned and must
// each have capacity >= 8; the core never resizes them (spec.md §4.2).
func New(sendID, recvID uint32, sendBuf, recvBuf []byte, opts ...Option) (*Link, error) {
	if sendBuf == nil || recvBuf == nil || len(sendBuf) < 8 || len(recvBuf) < 8 {
		return nil, ErrIllegalArgument
	}

	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	if o.host == nil {
		return nil, ErrIllegalArgument
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	return &Link{
		opts:              o,
		sendArbitrationID: sendID,
		recvArbitrationID: recvID,
		sendBuf:           sendBuf,
		recvBuf:           recvBuf,
	}, nil
}

// SendArbitrationID returns the outbound CAN ID currently configured for
// transmission (set at construction and on each Send call).
func (l *Link) SendArbitrationID() uint32 { return l.sendArbitrationID }

// ReceiveArbitrationID returns the inbound CAN ID this link expects frames
// addressed to. The core does not itself filter on this; the host is
// responsible for delivering only frames addressed to this link.
func (l *Link) ReceiveArbitrationID() uint32 { return l.recvArbitrationID }

// SetReceiveArbitrationID lets the host learn or reconfigure the inbound
// ID after construction (spec.md §4.2).
func (l *Link) SetReceiveArbitrationID(id uint32) { l.recvArbitrationID = id }

// SendStatus returns the current sender substate.
func (l *Link) SendStatus() SendStatus { return l.sendStatus }

// ReceiveStatus returns the current receiver substate.
func (l *Link) ReceiveStatus() ReceiveStatus { return l.receiveStatus }

// SendProtocolResult returns the diagnostic result of the last sender
// transition that ended abnormally (or ResultOk).
func (l *Link) SendProtocolResult() ProtocolResult { return l.sendResult }

// ReceiveProtocolResult returns the diagnostic result of the last receiver
// transition (or ResultOk). See spec.md §9 open question 1: an
// unrecognized PCI leaves this at ResultError rather than overwriting it,
// intentionally.
func (l *Link) ReceiveProtocolResult() ProtocolResult { return l.receiveResult }

func (l *Link) logger() *slog.Logger { return l.opts.logger }

func (l *Link) debug() DebugSink { return l.opts.host }
