package metrics

import "github.com/prometheus/client_golang/prometheus"

// ClinicMetrics exposes counters/histograms for booking, payment and call flows.
type ClinicMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	paymentsTotal      *prometheus.CounterVec
	signatureFailures  *prometheus.CounterVec
	callTokensTotal    prometheus.Counter
	slotCalcLatency    prometheus.Histogram
	notificationsTotal *prometheus.CounterVec
}

func NewClinicMetrics(reg prometheus.Registerer) *ClinicMetrics {
	m := &ClinicMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "appointments",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "payments",
			Name:      "events_total",
			Help:      "Payment lifecycle events by stage and result",
		}, []string{"stage", "result"}),
		signatureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "payments",
			Name:      "callback_signature_failures_total",
			Help:      "Gateway callbacks rejected for a bad signature",
		}, []string{"provider"}),
		callTokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "calls",
			Name:      "room_tokens_total",
			Help:      "Call room tokens issued",
		}),
		slotCalcLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "availability",
			Name:      "slot_calculation_seconds",
			Help:      "Latency of loading and computing a day's slots",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Notification emails by event type and status",
		}, []string{"event_type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.paymentsTotal,
		m.signatureFailures, m.callTokensTotal, m.slotCalcLatency, m.notificationsTotal)
	return m
}

func (m *ClinicMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *ClinicMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *ClinicMetrics) ObservePayment(stage, result string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(stage, result).Inc()
}

func (m *ClinicMetrics) ObserveSignatureFailure(provider string) {
	if m == nil {
		return
	}
	m.signatureFailures.WithLabelValues(provider).Inc()
}

func (m *ClinicMetrics) ObserveCallToken() {
	if m == nil {
		return
	}
	m.callTokensTotal.Inc()
}

func (m *ClinicMetrics) ObserveSlotCalculation(seconds float64) {
	if m == nil {
		return
	}
	m.slotCalcLatency.Observe(seconds)
}

func (m *ClinicMetrics) ObserveNotification(eventType, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(eventType, status).Inc()
}
