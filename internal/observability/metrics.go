package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	controlFramesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdrctl",
			Subsystem: "control",
			Name:      "frames_sent_total",
			Help:      "Frames sent on the command channel.",
		},
	)
	controlFramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdrctl",
			Subsystem: "control",
			Name:      "frames_received_total",
			Help:      "Frames received on the command channel, by disposition.",
		},
		[]string{"disposition"},
	)
	datagramsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdrctl",
			Subsystem: "stream",
			Name:      "datagrams_received_total",
			Help:      "IQ datagrams received on the data channel.",
		},
	)
	datagramsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdrctl",
			Subsystem: "stream",
			Name:      "datagrams_dropped_total",
			Help:      "IQ datagrams dropped because the consumer fell behind.",
		},
	)
	samplesDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdrctl",
			Subsystem: "stream",
			Name:      "samples_decoded_total",
			Help:      "IQ samples decoded from received datagrams.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdrctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sdrctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			controlFramesSent, controlFramesReceived,
			datagramsReceived, datagramsDropped, samplesDecoded,
			httpRequests, httpDuration,
		)
	})
}

func RecordControlFrameSent() {
	RegisterMetrics()
	controlFramesSent.Inc()
}

// RecordControlFrameReceived counts one inbound command-channel frame.
// Disposition is one of: correlated, unsolicited_ack, unsolicited_data,
// unsolicited_item, unsolicited_other, malformed.
func RecordControlFrameReceived(disposition string) {
	RegisterMetrics()
	controlFramesReceived.WithLabelValues(disposition).Inc()
}

func RecordDatagram(samples int) {
	RegisterMetrics()
	datagramsReceived.Inc()
	samplesDecoded.Add(float64(samples))
}

func RecordDatagramDropped() {
	RegisterMetrics()
	datagramsDropped.Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
