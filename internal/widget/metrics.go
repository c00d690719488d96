package widget

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine counters. A nil *Metrics records nothing.
type Metrics struct {
	sends          *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	fragments      prometheus.Counter
	refreshes      *prometheus.CounterVec
	ratings        *prometheus.CounterVec
	sessionsActive prometheus.Gauge
}

// NewMetrics creates and registers the widget metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widget_sends_total",
				Help: "Messages dispatched to the chat backend, by outcome",
			},
			[]string{"outcome"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widget_uploads_total",
				Help: "Attachment uploads, by outcome",
			},
			[]string{"outcome"},
		),
		fragments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "widget_fragments_revealed_total",
				Help: "Assistant reply fragments revealed into transcripts",
			},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widget_background_refresh_total",
				Help: "Background transcript refreshes, by result",
			},
			[]string{"result"},
		),
		ratings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widget_ratings_shown_total",
				Help: "Satisfaction prompts shown, by trigger reason",
			},
			[]string{"reason"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "widget_sessions_active",
				Help: "Widget sessions currently hosted",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.sends, m.uploads, m.fragments, m.refreshes, m.ratings, m.sessionsActive)
	}
	return m
}

func (m *Metrics) send(outcome string) {
	if m != nil {
		m.sends.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) upload(outcome string) {
	if m != nil {
		m.uploads.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) fragment() {
	if m != nil {
		m.fragments.Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) rating(reason RatingReason) {
	if m != nil {
		m.ratings.WithLabelValues(string(reason)).Inc()
	}
}

func (m *Metrics) sessions(delta float64) {
	if m != nil {
		m.sessionsActive.Add(delta)
	}
}
