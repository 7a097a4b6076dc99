package audit

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// millisecondsPerSecond is the conversion factor from milliseconds to seconds.
const millisecondsPerSecond = 1000.0

// Metrics tracks simulator metrics and serves them in Prometheus text format.
// It uses a custom prometheus.Registry for isolation and testability.
type Metrics struct {
	registry *prometheus.Registry

	simulationsTotal   *prometheus.CounterVec
	blocksTotal        *prometheus.CounterVec
	rateLimitHits      *prometheus.CounterVec
	simulationDuration *prometheus.HistogramVec
	requestsTotal      *prometheus.CounterVec
	ruleSets           prometheus.Gauge
	configReloads      *prometheus.CounterVec
	configReloadTime   prometheus.Gauge
	buildInfo          *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics collector with a custom Prometheus registry.
// All metric families are pre-registered with HELP and TYPE metadata.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		simulationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zeropass_simulations_total",
			Help: "Total number of simulations evaluated.",
		}, []string{"decision", "matched_rule"}),

		blocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zeropass_blocks_total",
			Help: "Total number of simulations that ended in a block.",
		}, []string{"matched_rule"}),

		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zeropass_rate_limit_hits_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"layer", "rule_set"}),

		simulationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zeropass_simulation_duration_seconds",
			Help:    "Evaluation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"decision"}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zeropass_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "path", "status"}),

		ruleSets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zeropass_rule_sets",
			Help: "Number of rule sets currently stored.",
		}),

		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zeropass_config_reloads_total",
			Help: "Total number of configuration reload attempts.",
		}, []string{"result"}),

		configReloadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zeropass_config_reload_timestamp_seconds",
			Help: "Unix timestamp of the last successful configuration reload.",
		}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zeropass_build_info",
			Help: "Build information about the zeropass binary. Value is always 1.",
		}, []string{"version", "go_version"}),
	}

	reg.MustRegister(
		m.simulationsTotal,
		m.blocksTotal,
		m.rateLimitHits,
		m.simulationDuration,
		m.requestsTotal,
		m.ruleSets,
		m.configReloads,
		m.configReloadTime,
		m.buildInfo,
	)

	return m
}

// RecordSimulation increments the simulation counter for the given decision
// and the rule category that produced it.
func (m *Metrics) RecordSimulation(decision, matchedRule string) {
	m.simulationsTotal.WithLabelValues(decision, matchedRule).Inc()
}

// RecordBlock records a simulation that ended in a block.
func (m *Metrics) RecordBlock(matchedRule string) {
	m.blocksTotal.WithLabelValues(matchedRule).Inc()
}

// RecordRateLimitHit records a rate limit rejection. Layer is "policy" for
// rule-driven limits and "ip" for the transport guard.
func (m *Metrics) RecordRateLimitHit(layer, ruleSet string) {
	m.rateLimitHits.WithLabelValues(layer, ruleSet).Inc()
}

// RecordSimulationLatency records evaluation duration in milliseconds.
// The value is converted to seconds internally per Prometheus convention.
func (m *Metrics) RecordSimulationLatency(decision string, ms float64) {
	m.simulationDuration.WithLabelValues(decision).Observe(ms / millisecondsPerSecond)
}

// RecordRequest increments the API request counter.
func (m *Metrics) RecordRequest(method, path string, status int) {
	m.requestsTotal.WithLabelValues(method, path, statusString(status)).Inc()
}

// SetRuleSetCount sets the stored rule set gauge.
func (m *Metrics) SetRuleSetCount(n int) {
	m.ruleSets.Set(float64(n))
}

// RecordConfigReload records a configuration reload attempt.
// Pass true for a successful reload, false for a failure.
func (m *Metrics) RecordConfigReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetConfigReloadTime records the timestamp of the last configuration reload.
func (m *Metrics) SetConfigReloadTime(t time.Time) {
	m.configReloadTime.Set(float64(t.Unix()))
}

// SetBuildInfo sets the build information gauge. The gauge value is always 1;
// version and Go version are exposed as labels.
func (m *Metrics) SetBuildInfo(version, goVersion string) {
	m.buildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Handler returns an HTTP handler that serves /metrics in Prometheus text
// format, with HELP and TYPE annotations per the exposition format.
func (m *Metrics) Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}
}

// statusString converts an integer status code to its string representation.
func statusString(code int) string {
	// Avoid fmt.Sprintf for hot path performance
	switch code {
	case 200:
		return "200"
	case 201:
		return "201"
	case 204:
		return "204"
	case 400:
		return "400"
	case 401:
		return "401"
	case 403:
		return "403"
	case 404:
		return "404"
	case 429:
		return "429"
	case 500:
		return "500"
	default:
		return intToString(code)
	}
}

// intToString converts a non-negative integer to a string without fmt.Sprintf.
func intToString(n int) string {
	if n == 0 {
		return "0"
	}
	negative := n < 0
	if negative {
		n = -n
	}
	buf := make([]byte, 0, 5)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	if negative {
		buf = append(buf, '-')
	}
	// Reverse
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
