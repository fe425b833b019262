package isotp

// Poll advances pending work: it emits the next consecutive frame of an
// in-progress send when the block-size/separation-time gate is open, and
// enforces both the sender's Bs timeout and the receiver's Cr timeout
// (spec.md §4.5).
//
// Poll is idempotent and side-effect-free when both directions are Idle or
// Full. It never blocks and never allocates. The host must call it at a
// cadence at least as fine as the configured STmin and the desired timeout
// resolution.
func (l *Link) Poll() {
	now := l.opts.host.Microseconds()
	l.pollSend(now)
	l.pollReceive(now)
}
