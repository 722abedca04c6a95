package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/librescoot/commwatch/pkg/model"
)

// Metrics exports a pipeline's frame and error counters as Prometheus
// series. Registration is left to the caller so multiple pipelines can
// share one registry with distinct const labels.
type Metrics struct {
	framesTotal  *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
	errorsTotal  prometheus.Counter
	lastFrameID  prometheus.Gauge
}

// NewMetrics constructs a Metrics instance labeled with the given const
// labels (e.g. device id), not yet registered against any registry.
func NewMetrics(constLabels prometheus.Labels) *Metrics {
	return &Metrics{
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "commwatch",
			Subsystem:   "session",
			Name:        "frames_total",
			Help:        "Number of protocol frames observed by the session pipeline, by direction.",
			ConstLabels: constLabels,
		}, []string{"direction"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "commwatch",
			Subsystem:   "session",
			Name:        "bytes_total",
			Help:        "Raw bytes observed by the session pipeline, by direction.",
			ConstLabels: constLabels,
		}, []string{"direction"}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "commwatch",
			Subsystem:   "session",
			Name:        "frame_errors_total",
			Help:        "Number of frames that failed codec validation.",
			ConstLabels: constLabels,
		}),
		lastFrameID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "commwatch",
			Subsystem:   "session",
			Name:        "last_frame_id",
			Help:        "Frame id of the most recently observed frame.",
			ConstLabels: constLabels,
		}),
	}
}

// Register adds every series to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.framesTotal, m.bytesTotal, m.errorsTotal, m.lastFrameID} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveFrame updates every series from one ProtocolFrame. Called from the
// pipeline's append path; never blocks on the pipeline's own locks.
func (m *Metrics) ObserveFrame(frame model.ProtocolFrame) {
	m.framesTotal.WithLabelValues(string(frame.Direction)).Inc()
	m.bytesTotal.WithLabelValues(string(frame.Direction)).Add(float64(len(frame.Raw)))
	m.lastFrameID.Set(float64(frame.ID))
	if frame.Error != nil {
		m.errorsTotal.Inc()
	}
}
