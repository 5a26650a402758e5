// Package metrics records scanner activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/northcutted/dock-lens/pkg/types"
)

const namespace = "docklens"

// Scan kinds.
const (
	KindImage = "image"
	KindIaC   = "iac"
	KindBuild = "build"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder holds the collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	scans           *prometheus.CounterVec
	scanDuration    *prometheus.HistogramVec
	vulnerabilities *prometheus.GaugeVec
	policies        *prometheus.GaugeVec
}

// New creates a recorder on a fresh registry that also exports Go runtime
// and process metrics.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scanner invocations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of scanner invocations.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		vulnerabilities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_vulnerabilities",
			Help:      "Vulnerabilities in the last scan of an image, by severity.",
		}, []string{"image", "severity"}),
		policies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_failed_policies",
			Help:      "Failed policy evaluations in the last scan of an image.",
		}, []string{"image"}),
	}
	registry.MustRegister(r.scans, r.scanDuration, r.vulnerabilities, r.policies)
	return r
}

// ObserveScan counts one scanner invocation.
func (r *Recorder) ObserveScan(kind string, started time.Time, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	r.scans.WithLabelValues(kind, outcome).Inc()
	r.scanDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// ObserveReport sets the per-image gauges from a report.
func (r *Recorder) ObserveReport(report *types.Report) {
	if r == nil || report == nil {
		return
	}
	image := report.Result.Metadata.PullString
	for _, sev := range types.Severities {
		r.vulnerabilities.WithLabelValues(image, string(sev)).Set(float64(report.Result.VulnTotalBySeverity.Count(sev)))
	}
	r.policies.WithLabelValues(image).Set(float64(types.FailedPolicies(report.Result.PolicyEvaluations)))
}

// Forget drops the per-image gauges of image, for images that no longer exist.
func (r *Recorder) Forget(image string) {
	if r == nil {
		return
	}
	r.vulnerabilities.DeletePartialMatch(prometheus.Labels{"image": image})
	r.policies.DeleteLabelValues(image)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
