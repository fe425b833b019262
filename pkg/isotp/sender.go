package isotp

// Send stages payload for transmission over the link (spec.md §4.3).
//
// Payloads of 7 bytes or fewer are sent immediately as a Single Frame and
// the sender remains Idle. Larger payloads emit a First Frame and arm the
// sender state machine; Poll and incoming flow-control frames drive the
// rest of the transfer.
func (l *Link) Send(arbitrationID uint32, payload []byte) error {
	if uint32(len(payload)) > uint32(len(l.sendBuf)) {
		return ErrOverflow
	}
	if l.sendStatus == SendInProgress {
		return ErrInProgress
	}

	copy(l.sendBuf, payload)
	l.sendSize = uint32(len(payload))
	l.sendOffset = 0
	l.sendArbitrationID = arbitrationID

	if l.sendSize <= 7 {
		n := buildSF(l.txFrame[:], l.sendBuf[:l.sendSize])
		frame := pad(l.txFrame[:], n, l.opts.padding, l.opts.padByte)
		l.sendStatus = SendIdle
		if err := l.opts.host.SendCAN(arbitrationID, frame); err != nil {
			return ErrHwNotReady
		}
		return nil
	}

	n := buildFF(l.txFrame[:], uint16(l.sendSize), l.sendBuf[0:6])
	frame := pad(l.txFrame[:], n, l.opts.padding, l.opts.padByte)
	now := l.opts.host.Microseconds()

	l.sendOffset = 6
	l.sendSN = 1
	l.sendBsRemain = 0 // await first FC
	l.sendSTMinUs = 0
	l.sendWFTCount = 0
	l.sendTimerST = now
	l.sendTimerBs = now + l.opts.timeoutUs
	l.sendResult = ResultOk
	l.sendStatus = SendInProgress

	if err := l.opts.host.SendCAN(arbitrationID, frame); err != nil {
		l.sendStatus = SendError
		l.sendResult = ResultError
		return ErrHwNotReady
	}
	return nil
}

// onFlowControl handles an inbound FC frame while a send is in progress
// (spec.md §4.3). An FC received while the sender is not InProgress is
// logged and ignored.
func (l *Link) onFlowControl(p pdu) {
	if l.sendStatus != SendInProgress {
		l.debug().Debugf("isotp: flow control received with sender status %s, ignoring", l.sendStatus)
		return
	}

	now := l.opts.host.Microseconds()
	l.sendTimerBs = now + l.opts.timeoutUs

	switch p.fs {
	case flowOverflow:
		l.sendResult = ResultBufferOverflow
		l.sendStatus = SendError
	case flowWait:
		l.sendWFTCount++
		if l.sendWFTCount > l.opts.maxWFT {
			l.sendResult = ResultWftOverrun
			l.sendStatus = SendError
		}
	case flowContinue:
		if p.bs == 0 {
			l.sendBsRemain = unlimitedSentinel
		} else {
			l.sendBsRemain = int32(p.bs)
		}
		st := p.stMinUs
		if l.opts.stMinUs > st {
			st = l.opts.stMinUs
		}
		l.sendSTMinUs = st
		l.sendWFTCount = 0
	default:
		l.debug().Debugf("isotp: unknown flow status %d, ignoring", p.fs)
	}
}

// pollSend advances a pending multi-frame transmission (spec.md §4.3).
func (l *Link) pollSend(now uint32) {
	if l.sendStatus != SendInProgress {
		return
	}

	if TimeAfter(now, l.sendTimerBs) {
		l.sendResult = ResultTimeoutBs
		l.sendStatus = SendIdle // spec.md §9 open question 2: Idle, not Error.
		return
	}

	blockOpen := l.sendBsRemain == unlimitedSentinel || l.sendBsRemain > 0
	stOpen := l.sendSTMinUs == 0 || TimeAfter(now, l.sendTimerST)
	if !blockOpen || !stOpen {
		return
	}

	remaining := l.sendSize - l.sendOffset
	n := remaining
	if n > 7 {
		n = 7
	}
	frameLen := buildCF(l.txFrame[:], l.sendSN, l.sendBuf[l.sendOffset:l.sendOffset+n])
	frame := pad(l.txFrame[:], frameLen, l.opts.padding, l.opts.padByte)

	if err := l.opts.host.SendCAN(l.sendArbitrationID, frame); err != nil {
		l.sendResult = ResultError
		l.sendStatus = SendError
		return
	}

	l.sendOffset += n
	l.sendSN = (l.sendSN + 1) % 16
	if l.sendBsRemain != unlimitedSentinel {
		l.sendBsRemain--
	}
	l.sendTimerBs = now + l.opts.timeoutUs
	l.sendTimerST = now + l.sendSTMinUs

	if l.sendOffset >= l.sendSize {
		l.sendStatus = SendIdle
		l.sendResult = ResultOk
	}
}
