package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "waylio"

// AppointmentMetrics exposes counters/histograms for appointment and queue flows.
type AppointmentMetrics struct {
	transitions *prometheus.CounterVec
	opLatency   *prometheus.HistogramVec
	queueWrites *prometheus.CounterVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "operation_duration_seconds",
			Help:      "Latency of appointment operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		queueWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "writes_total",
			Help:      "Queue store writes",
		}, []string{"op", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.opLatency, m.queueWrites)
	return m
}

func (m *AppointmentMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *AppointmentMetrics) ObserveOperation(op string, err error, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.opLatency.WithLabelValues(op, outcome).Observe(seconds)
}

func (m *AppointmentMetrics) ObserveQueueWrite(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queueWrites.WithLabelValues(op, status).Inc()
}

// RealtimeMetrics tracks socket clients and event fan-out.
type RealtimeMetrics struct {
	clients   prometheus.Gauge
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	m := &RealtimeMetrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "delivered_total",
			Help:      "Events queued to client buffers",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "dropped_total",
			Help:      "Events dropped because a client buffer was full",
		}, []string{"event"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.clients, m.delivered, m.dropped)
	return m
}

func (m *RealtimeMetrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

func (m *RealtimeMetrics) ObserveDelivery(event string, delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.delivered.WithLabelValues(event).Inc()
		return
	}
	m.dropped.WithLabelValues(event).Inc()
}

// NotificationMetrics counts dispatch outcomes per channel.
type NotificationMetrics struct {
	sent *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	m := &NotificationMetrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "dispatched_total",
			Help:      "Notification dispatch attempts",
		}, []string{"channel", "template", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sent)
	return m
}

func (m *NotificationMetrics) ObserveDispatch(channel, template, status string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(channel, template, status).Inc()
}
