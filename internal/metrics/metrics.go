// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simple_media"

type Metrics struct {
	Registry *prometheus.Registry

	Ingested        *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	Conversions     *prometheus.CounterVec
	ConvertSeconds  *prometheus.HistogramVec
	Deliveries      *prometheus.CounterVec
	VariantCache    *prometheus.CounterVec
	Derived         *prometheus.CounterVec
	Deleted         prometheus.Counter
	ReconcileRuns   *prometheus.CounterVec
	ReconcileFound  *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingested_total",
			Help: "Uploads stored, by resolved format.",
		}, []string{"format"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "classifications_total",
			Help: "Classification attempts, by outcome.",
		}, []string{"outcome"}),
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "conversions_total",
			Help: "Conversions, by target format and outcome.",
		}, []string{"target", "outcome"}),
		ConvertSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "conversion_duration_seconds",
			Help:    "Time spent converting, by target format.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"target"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "CDN responses, by result (served, redirect, not_modified).",
		}, []string{"result"}),
		VariantCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "variant_cache_total",
			Help: "Variant cache lookups, by result.",
		}, []string{"result"}),
		Derived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "derived_total",
			Help: "Derived artifacts created, by target format.",
		}, []string{"format"}),
		Deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deleted_total",
			Help: "Artifacts deleted.",
		}),
		ReconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconcile_runs_total",
			Help: "Reconciler runs, by outcome.",
		}, []string{"outcome"}),
		ReconcileFound: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "reconcile_found",
			Help: "Inconsistencies found by the last reconciler run, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Ingested, m.Classifications, m.Conversions, m.ConvertSeconds,
		m.Deliveries, m.VariantCache, m.Derived, m.Deleted,
		m.ReconcileRuns, m.ReconcileFound,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
