package isotp

// OnFrame classifies an inbound raw CAN data field and dispatches it to
// the sender (flow control) or receiver (SF/FF/CF) substate (spec.md §4.4).
//
// The host is responsible for delivering only frames addressed to this
// link (by recvArbitrationID); the core does not filter on arbitration ID
// itself.
func (l *Link) OnFrame(frame []byte) error {
	if len(frame) < 2 || len(frame) > 8 {
		l.receiveResult = ResultError
		return ErrLength
	}

	// spec.md §9 open question 1: Error is set up-front and only
	// overwritten by a recognized PCI kind; an unrecognized high nibble
	// intentionally leaves it at Error.
	l.receiveResult = ResultError

	p, err := classify(frame)
	if err != nil {
		return err
	}

	switch p.kind {
	case pciFlowControl:
		l.receiveResult = ResultOk
		l.onFlowControl(p)
		return nil
	case pciSingleFrame:
		return l.onSingleFrame(p)
	case pciFirstFrame:
		return l.onFirstFrame(p)
	case pciConsecutive:
		return l.onConsecutiveFrame(p)
	default:
		return nil
	}
}

func (l *Link) onSingleFrame(p pdu) error {
	if l.receiveStatus == ReceiveInProgress {
		l.receiveResult = ResultUnexpectedPdu
		return nil
	}
	l.receiveResult = ResultOk
	copy(l.recvBuf, p.data)
	l.receiveSize = uint32(len(p.data))
	l.receiveOffset = uint32(len(p.data))
	l.receiveStatus = ReceiveFull
	return nil
}

func (l *Link) onFirstFrame(p pdu) error {
	if l.receiveStatus == ReceiveInProgress {
		l.receiveResult = ResultUnexpectedPdu
		return nil
	}

	if uint32(p.ffDL) > uint32(len(l.recvBuf)) {
		l.receiveResult = ResultBufferOverflow
		l.sendFlowControl(flowOverflow, 0, 0)
		return nil
	}

	l.receiveResult = ResultOk
	copy(l.recvBuf, p.data)
	l.receiveSize = uint32(p.ffDL)
	l.receiveOffset = uint32(len(p.data))
	l.receiveSN = 1
	l.receiveBsCount = l.opts.blockSize
	l.receiveStatus = ReceiveInProgress
	l.receiveTimerCr = l.opts.host.Microseconds() + l.opts.timeoutUs

	l.sendFlowControl(flowContinue, l.opts.blockSize, l.opts.stMinUs)
	return nil
}

func (l *Link) onConsecutiveFrame(p pdu) error {
	if l.receiveStatus != ReceiveInProgress {
		l.receiveResult = ResultUnexpectedPdu
		return nil
	}

	if p.sn != l.receiveSN {
		l.receiveResult = ResultWrongSN
		l.receiveStatus = ReceiveIdle
		return nil
	}

	l.receiveResult = ResultOk
	remaining := l.receiveSize - l.receiveOffset
	n := uint32(len(p.data))
	if n > remaining {
		n = remaining
	}
	copy(l.recvBuf[l.receiveOffset:], p.data[:n])
	l.receiveOffset += n
	l.receiveSN = (l.receiveSN + 1) % 16
	l.receiveTimerCr = l.opts.host.Microseconds() + l.opts.timeoutUs

	if l.receiveOffset >= l.receiveSize {
		l.receiveStatus = ReceiveFull
		return nil
	}

	l.receiveBsCount--
	if l.receiveBsCount == 0 {
		l.receiveBsCount = l.opts.blockSize
		l.sendFlowControl(flowContinue, l.opts.blockSize, l.opts.stMinUs)
	}
	return nil
}

func (l *Link) sendFlowControl(fs flowStatus, bs uint8, stMinUs uint32) {
	n := buildFC(l.txFrame[:], fs, bs, stMinUs, l.debug())
	frame := pad(l.txFrame[:], n, l.opts.padding, l.opts.padByte)
	if err := l.opts.host.SendCAN(l.sendArbitrationID, frame); err != nil {
		l.debug().Debugf("isotp: failed to send flow control: %v", err)
	}
}

// Receive extracts a completed inbound message into out (spec.md §4.4).
// When a completed message is present it transitions the receiver back to
// Idle, whether or not the extraction succeeds; otherwise it returns
// ErrNoData and leaves the receiver state unchanged.
func (l *Link) Receive(out []byte) (n int, err error) {
	if l.receiveStatus != ReceiveFull {
		return 0, ErrNoData
	}

	size := l.receiveSize
	l.receiveStatus = ReceiveIdle
	l.receiveSize = 0
	l.receiveOffset = 0

	if size > uint32(len(out)) {
		return 0, ErrOverflow
	}
	copy(out, l.recvBuf[:size])
	return int(size), nil
}

// pollReceive enforces the Cr timeout (spec.md §4.4).
func (l *Link) pollReceive(now uint32) {
	if l.receiveStatus != ReceiveInProgress {
		return
	}
	if TimeAfter(now, l.receiveTimerCr) {
		l.receiveResult = ResultTimeoutCr
		l.receiveStatus = ReceiveIdle
		l.receiveSize = 0
		l.receiveOffset = 0
	}
}
