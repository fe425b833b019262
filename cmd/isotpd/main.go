// Command isotpd is a demo host for the ISO-TP core: it wires a CAN bus
// (socketcan or virtual), an isotp.Link, and a poll-loop goroutine, and can
// either send one payload from a file or print the next received payload
// to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/samsamfire/go-isotp/internal/config"
	"github.com/samsamfire/go-isotp/internal/metrics"
	"github.com/samsamfire/go-isotp/internal/queue"
	"github.com/samsamfire/go-isotp/pkg/can"
	_ "github.com/samsamfire/go-isotp/pkg/can/socketcan"
	_ "github.com/samsamfire/go-isotp/pkg/can/virtual"
	"github.com/samsamfire/go-isotp/pkg/isotp"
)

const pollPeriod = 1 * time.Millisecond

func main() {
	interfaceType := flag.String("type", "socketcan", "can backend type (socketcan, virtual)")
	channel := flag.String("i", "can0", "interface channel, e.g. can0, vcan0, or host:port for virtual")
	configPath := flag.String("c", "", "optional .ini config file with [link] tunables")
	sendPath := flag.String("send", "", "path to a file to send over the link, then exit")
	recvOnce := flag.Bool("recv", false, "receive one payload, print it to stdout, then exit")
	metricsAddr := flag.String("metrics", "", "address to serve Prometheus metrics on (disabled if empty)")
	flag.Parse()

	logger := slog.Default()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if *metricsAddr != "" {
		srv := metrics.StartHTTP(*metricsAddr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = metrics.Shutdown(ctx, srv)
		}()
	}

	bus, err := can.NewBus(*interfaceType, *channel)
	if err != nil {
		logger.Error("failed to construct bus", "type", *interfaceType, "channel", *channel, "err", err)
		os.Exit(1)
	}

	frameQueue := queue.New(64)
	host := &cliHost{bus: bus, logger: logger, start: time.Now()}

	sendBuf := make([]byte, cfg.SendBufSize)
	recvBuf := make([]byte, cfg.RecvBufSize)

	linkOpts := []isotp.Option{
		isotp.WithBlockSize(cfg.BlockSize),
		isotp.WithSTMinUs(cfg.STMinUs),
		isotp.WithTimeout(cfg.TimeoutUs),
		isotp.WithMaxWFT(cfg.MaxWFT),
		isotp.WithLogger(logger),
		isotp.WithHost(host),
	}
	if cfg.Padding {
		linkOpts = append(linkOpts, isotp.WithPadding(cfg.PadByte))
	}
	link, err := isotp.New(cfg.SendID, cfg.ReceiveID, sendBuf, recvBuf, linkOpts...)
	if err != nil {
		logger.Error("failed to construct link", "err", err)
		os.Exit(1)
	}

	if err := bus.Connect(); err != nil {
		logger.Error("failed to connect to bus", "err", err)
		os.Exit(1)
	}
	defer bus.Disconnect()
	if err := bus.Subscribe(&queueListener{queue: frameQueue, recvID: link.ReceiveArbitrationID()}); err != nil {
		logger.Error("failed to subscribe to bus", "err", err)
		os.Exit(1)
	}

	metrics.ActiveLinks.Inc()
	defer metrics.ActiveLinks.Dec()

	switch {
	case *sendPath != "":
		runSend(link, frameQueue, logger, *sendPath)
	case *recvOnce:
		runReceive(link, frameQueue, recvBuf, logger)
	default:
		runForever(link, frameQueue, recvBuf, logger)
	}
}

func runSend(link *isotp.Link, frameQueue *queue.FrameQueue, logger *slog.Logger, path string) {
	payload, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read payload file", "path", path, "err", err)
		os.Exit(1)
	}
	if err := link.Send(link.SendArbitrationID(), payload); err != nil {
		logger.Error("send rejected", "err", err)
		os.Exit(1)
	}
	var tracker resultTracker
	for link.SendStatus() == isotp.SendInProgress {
		frameQueue.Drain(func(f can.Frame) { _ = link.OnFrame(f.Data[:f.DLC]) })
		link.Poll()
		tracker.observe(link)
		time.Sleep(pollPeriod)
	}
	if result := link.SendProtocolResult(); result != isotp.ResultOk {
		logger.Error("send failed", "result", result)
		os.Exit(1)
	}
	logger.Info("send complete", "bytes", len(payload))
}

func runReceive(link *isotp.Link, frameQueue *queue.FrameQueue, recvBuf []byte, logger *slog.Logger) {
	var tracker resultTracker
	for {
		frameQueue.Drain(func(f can.Frame) { _ = link.OnFrame(f.Data[:f.DLC]) })
		link.Poll()
		tracker.observe(link)
		if link.ReceiveStatus() == isotp.ReceiveFull {
			n, err := link.Receive(recvBuf)
			if err != nil {
				logger.Error("receive failed", "err", err)
				os.Exit(1)
			}
			fmt.Println(string(recvBuf[:n]))
			return
		}
		time.Sleep(pollPeriod)
	}
}

func runForever(link *isotp.Link, frameQueue *queue.FrameQueue, recvBuf []byte, logger *slog.Logger) {
	var tracker resultTracker
	for {
		frameQueue.Drain(func(f can.Frame) { _ = link.OnFrame(f.Data[:f.DLC]) })
		link.Poll()
		tracker.observe(link)
		if link.ReceiveStatus() == isotp.ReceiveFull {
			n, err := link.Receive(recvBuf)
			if err != nil {
				logger.Error("receive failed", "err", err)
			} else {
				fmt.Println(string(recvBuf[:n]))
			}
		}
		time.Sleep(pollPeriod)
	}
}

// resultTracker reports protocol results to internal/metrics on change,
// since SendProtocolResult/ReceiveProtocolResult stay latched at their last
// value between transitions and would otherwise be double-counted on every
// poll tick.
type resultTracker struct {
	prevSend    isotp.ProtocolResult
	prevReceive isotp.ProtocolResult
}

func (t *resultTracker) observe(link *isotp.Link) {
	if sr := link.SendProtocolResult(); sr != t.prevSend {
		switch sr {
		case isotp.ResultTimeoutBs:
			metrics.SendTimeouts.Inc()
		case isotp.ResultWftOverrun:
			metrics.WftOverruns.Inc()
		}
		t.prevSend = sr
	}
	if rr := link.ReceiveProtocolResult(); rr != t.prevReceive {
		switch rr {
		case isotp.ResultTimeoutCr:
			metrics.ReceiveTimeouts.Inc()
		case isotp.ResultBufferOverflow:
			metrics.BufferOverflows.Inc()
		case isotp.ResultWrongSN:
			metrics.WrongSequenceNumbers.Inc()
		}
		t.prevReceive = rr
	}
}

// pciLabel maps a frame's PCI nibble to the label internal/metrics expects.
func pciLabel(firstByte byte) string {
	switch firstByte >> 4 {
	case 0x0:
		return metrics.PCISingleFrame
	case 0x1:
		return metrics.PCIFirstFrame
	case 0x2:
		return metrics.PCIConsecutive
	case 0x3:
		return metrics.PCIFlowControl
	default:
		return "unknown"
	}
}

// cliHost implements isotp.Host on top of a pkg/can.Bus: it sends frames
// addressed to the link's own send ID, uses a wall-clock-derived
// microsecond counter, and logs protocol diagnostics via slog.
type cliHost struct {
	bus    can.Bus
	logger *slog.Logger
	start  time.Time
}

func (h *cliHost) SendCAN(arbitrationID uint32, data []byte) error {
	if len(data) > 0 {
		metrics.FramesSent.WithLabelValues(pciLabel(data[0])).Inc()
	}
	return h.bus.Send(can.NewFrame(arbitrationID, 0, data))
}

func (h *cliHost) Microseconds() uint32 {
	return uint32(time.Since(h.start).Microseconds())
}

func (h *cliHost) Debugf(format string, args ...any) {
	h.logger.Debug(fmt.Sprintf(format, args...))
}

// queueListener bridges a Bus's own reception goroutine into the
// single-goroutine poll loop by pushing frames addressed to recvID onto a
// FrameQueue, per spec.md's single-threaded-core requirement.
type queueListener struct {
	queue  *queue.FrameQueue
	recvID uint32
}

func (l *queueListener) Handle(frame can.Frame) {
	if frame.ID != l.recvID {
		return
	}
	if frame.DLC > 0 {
		metrics.FramesReceived.WithLabelValues(pciLabel(frame.Data[0])).Inc()
	}
	l.queue.Push(frame)
}
