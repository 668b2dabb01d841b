package metrics

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"posewire/pkg/protocol"
)

const namespace = "posewire"

// Connection error reasons.
const (
	ReasonHeaderMismatch = "header_mismatch"
	ReasonTruncated      = "truncated"
	ReasonTransport      = "transport"
)

var (
	registerOnce sync.Once

	receivedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "frames_total",
		Help:      "Skeleton records decoded by the receiver.",
	})
	receivedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "bytes_total",
		Help:      "Bytes read from capture connections.",
	})
	connections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receiver",
		Name:      "connections_total",
		Help:      "Capture connections accepted.",
	})
	connectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "connection_errors_total",
			Help:      "Capture connections terminated by an error.",
		},
		[]string{"reason"},
	)
	renderDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "dropped_frames_total",
		Help:      "Frames superseded before the render side read them.",
	})
	sentFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "frames_total",
		Help:      "Skeleton records written by the sender.",
	})
	sendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "errors_total",
		Help:      "Sender connections abandoned after a write or sample failure.",
	})
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			receivedFrames,
			receivedBytes,
			connections,
			connectionErrors,
			renderDropped,
			sentFrames,
			sendErrors,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func RecordConnection() {
	connections.Inc()
}

func RecordFrameReceived() {
	receivedFrames.Inc()
}

// RecordConnectionClosed accounts for a finished connection. A nil or io.EOF
// err is a clean close.
func RecordConnectionClosed(bytes uint64, err error) {
	receivedBytes.Add(float64(bytes))
	if reason := Reason(err); reason != "" {
		connectionErrors.WithLabelValues(reason).Inc()
	}
}

// Reason maps a connection error to its metric label.
func Reason(err error) string {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return ""
	case errors.Is(err, protocol.ErrHeaderMismatch):
		return ReasonHeaderMismatch
	case errors.Is(err, protocol.ErrTruncatedStream):
		return ReasonTruncated
	default:
		return ReasonTransport
	}
}

func RecordRenderDropped(n uint64) {
	renderDropped.Add(float64(n))
}

func RecordFrameSent() {
	sentFrames.Inc()
}

func RecordSendError() {
	sendErrors.Inc()
}
