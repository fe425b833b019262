package isotp

import "log/slog"

// Tunables, per spec: supplied at compile/construction time, never parsed
// from a config file by the core itself (see internal/config for the host
// side .ini loader used by cmd/isotpd).
const (
	DefaultBlockSize           = 8
	DefaultSTMinMs             = 0
	DefaultResponseTimeoutUs   = 1_000_000
	MaxWFTNumber               = 16
	defaultPadByte             = 0x00

	// unlimitedSentinel marks send_bs_remain as "no block-size limit",
	// i.e. BS == 0 was negotiated by the peer's flow control frame.
	unlimitedSentinel = -1
)

// options holds the per-Link configuration assembled by New from the
// supplied Option values.
type options struct {
	blockSize      uint8
	stMinUs        uint32
	timeoutUs      uint32
	maxWFT         uint8
	padding        bool
	padByte        byte
	logger         *slog.Logger
	host           Host
}

func defaultOptions() options {
	return options{
		blockSize: DefaultBlockSize,
		stMinUs:   DefaultSTMinMs * 1000,
		timeoutUs: DefaultResponseTimeoutUs,
		maxWFT:    MaxWFTNumber,
		padding:   false,
		padByte:   defaultPadByte,
		logger:    slog.Default(),
	}
}

// Option configures a Link at construction time.
type Option func(*options)

// WithBlockSize overrides the receiver's default block size (BS) advertised
// in flow-control frames.
func WithBlockSize(bs uint8) Option {
	return func(o *options) { o.blockSize = bs }
}

// WithSTMinUs overrides the default minimum separation time, expressed in
// microseconds, advertised in flow-control frames.
func WithSTMinUs(us uint32) Option {
	return func(o *options) { o.stMinUs = us }
}

// WithTimeout overrides the conflated Bs/Cr response timeout, in
// microseconds.
func WithTimeout(us uint32) Option {
	return func(o *options) { o.timeoutUs = us }
}

// WithMaxWFT overrides the maximum number of Wait flow-control frames the
// sender tolerates before aborting with WftOverrun.
func WithMaxWFT(n uint8) Option {
	return func(o *options) { o.maxWFT = n }
}

// WithPadding enables frame padding to 8 bytes using the given pad byte.
func WithPadding(padByte byte) Option {
	return func(o *options) {
		o.padding = true
		o.padByte = padByte
	}
}

// WithLogger injects a structured logger; defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHost injects the host capability trio (CAN send, clock, debug sink).
// Required: New returns ErrIllegalArgument if no host is supplied.
func WithHost(host Host) Option {
	return func(o *options) { o.host = host }
}
