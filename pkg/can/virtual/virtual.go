// Package virtual provides a TCP-loopback CAN bus used for local
// development and for the test suite's round-trip scenarios, when no real
// CAN hardware is present. It expects a small broker server relaying
// frames between connected clients (see https://github.com/windelbouwman/virtualcan
// for the protocol this mirrors).
package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samsamfire/go-isotp/pkg/can"
)

func init() {
	can.RegisterInterface("virtual", NewBus)
	can.RegisterInterface("virtualcan", NewBus)
}

// Bus is a TCP-loopback can.Bus backend.
type Bus struct {
	logger       *slog.Logger
	mu           sync.Mutex
	channel      string
	conn         net.Conn
	receiveOwn   bool
	frameHandler can.FrameListener
	stopChan     chan bool
	wg           sync.WaitGroup
	isRunning    bool
	errSubscr    bool
}

// NewBus constructs a Bus that will dial channel (e.g. "localhost:18888")
// on Connect.
func NewBus(channel string) (can.Bus, error) {
	return &Bus{
		channel:  channel,
		stopChan: make(chan bool),
		logger:   slog.Default(),
	}, nil
}

func serializeFrame(frame can.Frame) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, frame); err != nil {
		return nil, err
	}
	payload := buf.Bytes()
	out := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	return append(out, payload...), nil
}

func deserializeFrame(raw []byte) (*can.Frame, error) {
	var frame can.Frame
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Connect dials the broker at b.channel.
func (b *Bus) Connect(...any) error {
	conn, err := net.Dial("tcp", b.channel)
	if err != nil {
		return err
	}
	b.conn = conn
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	return nil
}

// Disconnect stops the reception goroutine and closes the connection.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.errSubscr && b.isRunning {
		b.stopChan <- true
		b.wg.Wait()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Send transmits frame to the broker. When SetReceiveOwn(true) was called
// it first loops the frame back to the local FrameListener (useful for
// wiring a sender and receiver Link inside a single process/test); it then
// still writes it to the broker if connected, and succeeds without a
// connection.
func (b *Bus) Send(frame can.Frame) error {
	if b.receiveOwn && b.frameHandler != nil {
		b.frameHandler.Handle(frame)
	} else if b.conn == nil {
		return errors.New("virtual: no active connection, cannot send")
	}
	if b.conn == nil {
		return nil
	}
	raw, err := serializeFrame(frame)
	if err != nil {
		return err
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	_, err = b.conn.Write(raw)
	return err
}

// Subscribe registers frameHandler and starts the reception goroutine.
func (b *Bus) Subscribe(frameHandler can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameHandler = frameHandler
	if b.isRunning {
		return nil
	}
	b.wg.Add(1)
	b.isRunning = true
	b.errSubscr = false
	go b.handleReception()
	return nil
}

// Recv reads one length-prefixed frame from the broker connection.
func (b *Bus) Recv() (*can.Frame, error) {
	if b.conn == nil {
		return nil, errors.New("virtual: no active connection, cannot receive")
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	header := make([]byte, 4)
	n, err := b.conn.Read(header)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n < 4 || err != nil {
		return nil, fmt.Errorf("virtual: short header read (%d/%d): %w", n, 4, err)
	}
	length := binary.BigEndian.Uint32(header)
	raw := make([]byte, length)
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, err = b.conn.Read(raw)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n != int(length) || err != nil {
		return nil, fmt.Errorf("virtual: short frame read (%d/%d)", n, length)
	}
	return deserializeFrame(raw)
}

func (b *Bus) handleReception() {
	defer func() {
		b.isRunning = false
		b.wg.Done()
	}()
	for {
		select {
		case <-b.stopChan:
			return
		default:
			if !b.mu.TryLock() {
				continue
			}
			frame, err := b.Recv()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No message received, this is fine.
			} else if err != nil {
				b.logger.Error("virtual bus reception stopped", "err", err)
				b.errSubscr = true
				b.mu.Unlock()
				return
			} else if b.frameHandler != nil {
				b.frameHandler.Handle(*frame)
			}
			b.mu.Unlock()
		}
	}
}

// SetReceiveOwn enables local loopback of sent frames back into the
// registered FrameListener, in addition to sending them to the broker when
// a connection exists. Useful for
// exercising a sender and receiver Link within a single test process.
func (b *Bus) SetReceiveOwn(enabled bool) {
	b.receiveOwn = enabled
}
