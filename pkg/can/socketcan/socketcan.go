// Package socketcan wraps github.com/brutella/can to provide a Linux
// SocketCAN backend for pkg/can.Bus.
package socketcan

import (
	sockcan "github.com/brutella/can"

	"github.com/samsamfire/go-isotp/pkg/can"
)

func init() {
	can.RegisterInterface("socketcan", NewBus)
}

// Bus adapts a brutella/can bus to can.Bus.
type Bus struct {
	bus        *sockcan.Bus
	rxCallback can.FrameListener
}

// NewBus opens a SocketCAN interface by name (e.g. "can0", "vcan0"). The
// interface must already be up.
func NewBus(channel string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(channel)
	if err != nil {
		return nil, err
	}
	return &Bus{bus: bus}, nil
}

// Connect starts the brutella bus's own receive loop in the background.
func (b *Bus) Connect(...any) error {
	go b.bus.ConnectAndPublish()
	return nil
}

// Disconnect closes the underlying SocketCAN socket.
func (b *Bus) Disconnect() error {
	return b.bus.Disconnect()
}

// Send transmits one frame.
func (b *Bus) Send(frame can.Frame) error {
	return b.bus.Publish(sockcan.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Flags:  frame.Flags,
		Data:   frame.Data,
	})
}

// Subscribe registers rxCallback for all frames received on the bus.
func (b *Bus) Subscribe(rxCallback can.FrameListener) error {
	b.rxCallback = rxCallback
	b.bus.Subscribe(b)
	return nil
}

// Handle implements brutella/can's own Handler interface and bridges
// received frames back into can.FrameListener.
func (b *Bus) Handle(frame sockcan.Frame) {
	if b.rxCallback == nil {
		return
	}
	b.rxCallback.Handle(can.Frame{
		ID:    frame.ID,
		DLC:   frame.Length,
		Flags: frame.Flags,
		Data:  frame.Data,
	})
}
