package isotp

// pciType is the PDU kind tagged by the high nibble of byte 0, per
// spec.md §3/§6.
type pciType uint8

const (
	pciSingleFrame     pciType = 0x0
	pciFirstFrame      pciType = 0x1
	pciConsecutive     pciType = 0x2
	pciFlowControl     pciType = 0x3
)

// flowStatus is the FS field of a flow-control frame.
type flowStatus uint8

const (
	flowContinue flowStatus = 0
	flowWait     flowStatus = 1
	flowOverflow flowStatus = 2
)

// pdu is the tagged variant over the four ISO-TP PDU kinds produced by
// classify. Exactly one of the typed payload fields is meaningful,
// selected by Kind.
type pdu struct {
	kind pciType

	// SF
	sfDL uint8

	// FF
	ffDL uint16

	// CF
	sn uint8

	// FC
	fs      flowStatus
	bs      uint8
	stMinUs uint32

	// Payload bytes, sliced from the original frame (not copied).
	data []byte
}

// classify parses the PCI of a raw CAN data field (1..8 bytes) per
// spec.md §4.1. It never touches link state.
func classify(frame []byte) (pdu, error) {
	n := len(frame)
	if n < 2 || n > 8 {
		return pdu{}, ErrLength
	}

	switch pciType(frame[0] >> 4) {
	case pciSingleFrame:
		return classifySF(frame)
	case pciFirstFrame:
		return classifyFF(frame)
	case pciConsecutive:
		return classifyCF(frame), nil
	case pciFlowControl:
		return classifyFC(frame)
	default:
		return pdu{}, ErrLength
	}
}

func classifySF(frame []byte) (pdu, error) {
	n := len(frame)
	sfDL := frame[0] & 0x0F
	if sfDL < 1 || int(sfDL) > n-1 {
		return pdu{}, ErrLength
	}
	return pdu{kind: pciSingleFrame, sfDL: sfDL, data: frame[1 : 1+int(sfDL)]}, nil
}

func classifyFF(frame []byte) (pdu, error) {
	if len(frame) != 8 {
		return pdu{}, ErrLength
	}
	ffDL := (uint16(frame[0]&0x0F) << 8) | uint16(frame[1])
	if ffDL <= 7 {
		return pdu{}, ErrLength
	}
	return pdu{kind: pciFirstFrame, ffDL: ffDL, data: frame[2:8]}, nil
}

func classifyCF(frame []byte) pdu {
	sn := frame[0] & 0x0F
	return pdu{kind: pciConsecutive, sn: sn, data: frame[1:]}
}

func classifyFC(frame []byte) (pdu, error) {
	if len(frame) < 3 {
		return pdu{}, ErrLength
	}
	fs := flowStatus(frame[0] & 0x0F)
	bs := frame[1]
	stMinUs := decodeSTmin(frame[2])
	return pdu{kind: pciFlowControl, fs: fs, bs: bs, stMinUs: stMinUs}, nil
}

// decodeSTmin decodes the STmin byte per ISO 15765-2 §6.5.5.5 (spec.md §4.1
// / §6). Reserved values decode to 0, signalling "invalid, use the
// implementation default" to the caller.
func decodeSTmin(raw byte) uint32 {
	switch {
	case raw <= 0x7F:
		return uint32(raw) * 1000
	case raw >= 0xF1 && raw <= 0xF9:
		return uint32(raw-0xF0) * 100
	default:
		return 0
	}
}

// encodeSTmin is the mirror of decodeSTmin. Values that don't land exactly
// on an encodable microsecond amount are reported to dbg: between 1ms and
// 127ms they are rounded down to a whole millisecond; sub-millisecond values
// that are not a multiple of 100us, and values above 127ms, encode as 0x7F.
func encodeSTmin(us uint32, dbg DebugSink) byte {
	switch {
	case us == 0:
		return 0x00
	case us >= 100 && us <= 900 && us%100 == 0:
		return 0xF0 + byte(us/100)
	case us <= 127_000 && us%1000 == 0:
		return byte(us / 1000)
	case us < 1000:
		// Sub-millisecond and not one of the 100us-multiple bands above:
		// not exactly encodable, fall back to 0x7F.
		if dbg != nil {
			dbg.Debugf("isotp: STmin %dus is not exactly encodable, clamping to 0x7F", us)
		}
		return 0x7F
	case us <= 127_000:
		// Round down to the nearest whole millisecond.
		if dbg != nil {
			dbg.Debugf("isotp: STmin %dus is not exactly encodable, clamping to %dms", us, us/1000)
		}
		return byte(us / 1000)
	default:
		// Anything above 127ms.
		if dbg != nil {
			dbg.Debugf("isotp: STmin %dus is not representable, using reserved default", us)
		}
		return 0x7F
	}
}

// buildSF encodes a Single Frame into dst (capacity >= 1+len(payload)),
// returns the frame length.
func buildSF(dst []byte, payload []byte) int {
	dst[0] = byte(pciSingleFrame)<<4 | byte(len(payload))
	copy(dst[1:], payload)
	return 1 + len(payload)
}

// buildFF encodes a First Frame. dst must have capacity 8; payload must
// have at least 6 bytes (the caller slices the first 6 bytes of the
// message into it).
func buildFF(dst []byte, totalLen uint16, payload6 []byte) int {
	dst[0] = byte(pciFirstFrame)<<4 | byte(totalLen>>8)
	dst[1] = byte(totalLen)
	copy(dst[2:8], payload6)
	return 8
}

// buildCF encodes a Consecutive Frame carrying up to 7 payload bytes.
func buildCF(dst []byte, sn uint8, payload []byte) int {
	dst[0] = byte(pciConsecutive)<<4 | (sn & 0x0F)
	copy(dst[1:], payload)
	return 1 + len(payload)
}

// buildFC encodes a Flow Control frame.
func buildFC(dst []byte, fs flowStatus, bs uint8, stMinUs uint32, dbg DebugSink) int {
	dst[0] = byte(pciFlowControl)<<4 | byte(fs&0x0F)
	dst[1] = bs
	dst[2] = encodeSTmin(stMinUs, dbg)
	return 3
}

// pad pads frame (already sized to its natural length) to 8 bytes using
// padByte, when padding is enabled. frame must have capacity 8.
func pad(frame []byte, n int, enabled bool, padByte byte) []byte {
	if !enabled || n >= 8 {
		return frame[:n]
	}
	for i := n; i < 8; i++ {
		frame[i] = padByte
	}
	return frame[:8]
}
