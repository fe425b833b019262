package isotp

// Host is the capability trio the core requires from its environment, per
// spec.md §6 and the design note in §9 ("the global-function host interface
// ... should be modeled as a capability trio injected at construction").
//
// Implementations must be safe to call from whichever single goroutine
// drives a given Link; the core never calls Host methods concurrently with
// itself, and never re-enters a Link from inside a Host callback.
type Host interface {
	FrameSender
	Clock
	DebugSink
}

// FrameSender sends one raw CAN frame. Implementations may block briefly
// but must not re-enter the core.
type FrameSender interface {
	SendCAN(arbitrationID uint32, data []byte) error
}

// Clock is a monotonic microsecond clock. Wrap-around is handled by the
// core via TimeAfter; callers need not worry about it.
type Clock interface {
	Microseconds() uint32
}

// DebugSink is a best-effort textual sink for protocol diagnostics. It
// must never be called with stateful side effects in a hot path.
type DebugSink interface {
	Debugf(format string, args ...any)
}

// TimeAfter reports whether `now` is at or past `deadline`, tolerating
// 32-bit wrap-around (spec.md §9): (int32)(now-deadline) >= 0.
func TimeAfter(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}
