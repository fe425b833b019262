// Package metrics exposes Prometheus counters for link-level
// observability. The core package (pkg/isotp) never imports this package;
// the host (cmd/isotpd) reads ProtocolResult values off a Link and reports
// them here.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isotp_frames_sent_total",
		Help: "Total CAN frames emitted by the ISO-TP core, by PCI type.",
	}, []string{"pci"})

	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isotp_frames_received_total",
		Help: "Total CAN frames delivered to the ISO-TP core, by PCI type.",
	}, []string{"pci"})

	SendTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isotp_send_timeouts_total",
		Help: "Total sender Bs timeouts (no flow control within the response timeout).",
	})

	ReceiveTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isotp_receive_timeouts_total",
		Help: "Total receiver Cr timeouts (no consecutive frame within the response timeout).",
	})

	WrongSequenceNumbers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isotp_wrong_sn_total",
		Help: "Total consecutive frames rejected for a sequence-number mismatch.",
	})

	BufferOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isotp_buffer_overflows_total",
		Help: "Total transfers aborted because a First Frame announced a size exceeding the receive buffer.",
	})

	WftOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isotp_wft_overruns_total",
		Help: "Total sends aborted for exceeding the maximum wait-frame count.",
	})

	ActiveLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "isotp_active_links",
		Help: "Current number of Links registered with the host.",
	})
)

// PCI label values, kept stable and bounded (4 values).
const (
	PCISingleFrame = "sf"
	PCIFirstFrame  = "ff"
	PCIConsecutive = "cf"
	PCIFlowControl = "fc"
)

// StartHTTP serves Prometheus metrics at /metrics on addr. The server runs
// in its own goroutine; StartHTTP returns immediately with it.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}

// Shutdown gracefully stops the metrics HTTP server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
