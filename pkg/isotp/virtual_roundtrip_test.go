package isotp

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samsamfire/go-isotp/pkg/can"
	"github.com/samsamfire/go-isotp/pkg/can/virtual"
)

// startLoopbackBroker runs a minimal relay for pkg/can/virtual clients:
// every length-prefixed frame read from one connection is rebroadcast to
// every other connected client, mirroring the broker protocol virtual.Bus
// expects. It stops once the test ends.
func startLoopbackBroker(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	var mu sync.Mutex
	var conns []net.Conn

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			go func(c net.Conn) {
				header := make([]byte, 4)
				for {
					if _, err := readFull(c, header); err != nil {
						return
					}
					length := binary.BigEndian.Uint32(header)
					body := make([]byte, length)
					if _, err := readFull(c, body); err != nil {
						return
					}
					msg := append(append([]byte{}, header...), body...)
					mu.Lock()
					for _, other := range conns {
						if other != c {
							_, _ = other.Write(msg)
						}
					}
					mu.Unlock()
				}
			}(conn)
		}
	}()

	return listener.Addr().String()
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// virtualHost wires an isotp.Host on top of a pkg/can.Bus for tests: sends
// go out over the bus, a monotonic wall clock drives Microseconds, and
// inbound frames land on a channel for the test goroutine to drain into
// OnFrame (keeping each Link single-goroutine as the core requires).
type virtualHost struct {
	bus    can.Bus
	start  time.Time
	recvID uint32
	inbox  chan can.Frame
}

func newVirtualHost(bus can.Bus, recvID uint32) *virtualHost {
	h := &virtualHost{bus: bus, start: time.Now(), recvID: recvID, inbox: make(chan can.Frame, 64)}
	return h
}

func (h *virtualHost) Handle(frame can.Frame) {
	if frame.ID != h.recvID {
		return
	}
	select {
	case h.inbox <- frame:
	default:
	}
}

func (h *virtualHost) SendCAN(id uint32, data []byte) error {
	return h.bus.Send(can.NewFrame(id, 0, data))
}

func (h *virtualHost) Microseconds() uint32 { return uint32(time.Since(h.start).Microseconds()) }

func (h *virtualHost) Debugf(format string, args ...any) {}

func (h *virtualHost) drain(link *Link) {
	for {
		select {
		case frame := <-h.inbox:
			_ = link.OnFrame(frame.Data[:frame.DLC])
		default:
			return
		}
	}
}

// TestVirtualBus_RoundTrip sends a multi-frame payload from one Link to
// another over two pkg/can/virtual clients relayed by an in-process
// broker, exercising the full FF/FC/CF exchange end to end (spec.md §8).
func TestVirtualBus_RoundTrip(t *testing.T) {
	addr := startLoopbackBroker(t)

	senderBus, err := virtual.NewBus(addr)
	require.NoError(t, err)
	receiverBus, err := virtual.NewBus(addr)
	require.NoError(t, err)

	senderHost := newVirtualHost(senderBus, 0x701)
	receiverHost := newVirtualHost(receiverBus, 0x700)

	require.NoError(t, senderBus.Connect())
	require.NoError(t, receiverBus.Connect())
	defer senderBus.Disconnect()
	defer receiverBus.Disconnect()
	require.NoError(t, senderBus.Subscribe(senderHost))
	require.NoError(t, receiverBus.Subscribe(receiverHost))

	// Let both clients finish their broker handshake.
	time.Sleep(20 * time.Millisecond)

	sender, err := New(0x700, 0x701, make([]byte, 64), make([]byte, 64), WithHost(senderHost))
	require.NoError(t, err)
	receiver, err := New(0x701, 0x700, make([]byte, 64), make([]byte, 64), WithHost(receiverHost))
	require.NoError(t, err)

	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, sender.Send(0x700, payload))

	deadline := time.Now().Add(2 * time.Second)
	for receiver.ReceiveStatus() != ReceiveFull && time.Now().Before(deadline) {
		senderHost.drain(sender)
		receiverHost.drain(receiver)
		sender.Poll()
		receiver.Poll()
		time.Sleep(time.Millisecond)
	}

	require.Equal(t, ReceiveFull, receiver.ReceiveStatus(), "receiver never completed reassembly")
	out := make([]byte, len(payload))
	n, err := receiver.Receive(out)
	require.NoError(t, err)
	require.Equal(t, payload, out[:n])
	require.Equal(t, SendIdle, sender.SendStatus())
	require.Equal(t, ResultOk, sender.SendProtocolResult())
}
