// Package metrics exposes delivery and segmentation counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry so tests can build
// as many instances as they like. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	submitted        *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	campaigns        *prometheus.CounterVec
	deliveryDuration prometheus.Histogram
	materializations *prometheus.CounterVec
	materializeTime  prometheus.Histogram
	queueDepth       prometheus.Gauge
	receiptBatch     prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.SummaryVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_messages_submitted_total",
			Help: "Messages handed to the vendor, by delivery mode.",
		}, []string{"mode"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_message_outcomes_total",
			Help: "Terminal delivery outcomes recorded.",
		}, []string{"status"}),
		campaigns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_campaigns_total",
			Help: "Campaigns by final status.",
		}, []string{"status"}),
		deliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_campaign_delivery_seconds",
			Help:    "Time spent fanning a campaign out to its audience.",
			Buckets: prometheus.DefBuckets,
		}),
		materializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_segment_materializations_total",
			Help: "Segment materializations by result.",
		}, []string{"result"}),
		materializeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_segment_materialize_seconds",
			Help:    "Segment materialization latency.",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crm_queue_depth",
			Help: "QUEUED messages seen by the last drain tick.",
		}),
		receiptBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_receipt_batch_size",
			Help:    "Receipts applied per flush.",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "crm_http_request_duration_seconds",
			Help:       "HTTP request latency.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			MaxAge:     5 * time.Minute,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submitted, m.outcomes, m.campaigns, m.deliveryDuration,
		m.materializations, m.materializeTime, m.queueDepth, m.receiptBatch,
		m.httpRequests, m.httpDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageSubmitted(mode string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(mode).Inc()
}

func (m *Metrics) OutcomeRecorded(status string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) CampaignFinished(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.campaigns.WithLabelValues(status).Inc()
	m.deliveryDuration.Observe(took.Seconds())
}

func (m *Metrics) SegmentMaterialized(err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.materializations.WithLabelValues(result).Inc()
	m.materializeTime.Observe(took.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) ReceiptsFlushed(n int) {
	if m == nil {
		return
	}
	m.receiptBatch.Observe(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
