package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON document served at /metrics/summary.
type Summary struct {
	HTTP     httpSummary      `json:"http"`
	Auth     authInfo         `json:"auth"`
	Access   accessInfo       `json:"access"`
	Activity activityInfo     `json:"activity"`
	Summary  map[string]int64 `json:"summaries"`
	Health   map[string]int64 `json:"keyResultHealth"`
	DB       dbInfo           `json:"db"`
	Server   serverInfo       `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type accessInfo struct {
	Denials             float64 `json:"denials"`
	RateLimitRejections float64 `json:"rateLimitRejections"`
}

type activityInfo struct {
	Flushes     float64 `json:"flushes"`
	FlushErrors float64 `json:"flushErrors"`
	Entries     float64 `json:"entries"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

func metricName(name string) string { return namespace + "_" + name }

// Handler serves a JSON digest of the registry.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		families, err := m.registry.Gather()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summarize(families, time.Now()))
	}
}

func summarize(families []*dto.MetricFamily, now time.Time) Summary {
	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	requests := fam[metricName("http_requests_total")]
	durations := fam[metricName("http_request_duration_seconds")]
	flushes := fam[metricName("activity_flushes_total")]
	start := gaugeValue(fam[metricName("server_start_time_seconds")])

	return Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(requests),
			ErrorRate:     errorRate(requests),
			P50Latency:    histogramPercentile(durations, 0.50),
			P95Latency:    histogramPercentile(durations, 0.95),
			P99Latency:    histogramPercentile(durations, 0.99),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam[metricName("auth_failures_total")]),
			Successes: sumCounter(fam[metricName("auth_successes_total")]),
		},
		Access: accessInfo{
			Denials:             sumCounter(fam[metricName("access_denials_total")]),
			RateLimitRejections: sumCounter(fam[metricName("ratelimit_rejections_total")]),
		},
		Activity: activityInfo{
			Flushes:     sumCounter(flushes),
			FlushErrors: counterWithLabel(flushes, "status", "error"),
			Entries:     counterValue(fam[metricName("activity_entries_total")]),
		},
		Summary: countsByLabel(fam[metricName("summaries_total")], "outcome"),
		Health:  countsByLabel(fam[metricName("key_result_health_evaluations_total")], "status"),
		DB: dbInfo{
			TotalConns:    gaugeValue(fam[metricName("db_pool_total_conns")]),
			IdleConns:     gaugeValue(fam[metricName("db_pool_idle_conns")]),
			AcquiredConns: gaugeValue(fam[metricName("db_pool_acquired_conns")]),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(now.Unix()) - start,
		},
	}
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil || len(f.GetMetric()) == 0 {
		return 0
	}
	if g := f.GetMetric()[0].GetGauge(); g != nil {
		return g.GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil || len(f.GetMetric()) == 0 {
		return 0
	}
	if c := f.GetMetric()[0].GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

func labelValue(m *dto.Metric, name string) (string, bool) {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue(), true
		}
	}
	return "", false
}

func counterWithLabel(f *dto.MetricFamily, labelName, want string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if v, ok := labelValue(m, labelName); ok && v == want && m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// countsByLabel groups a counter family by one label. The map is never nil.
func countsByLabel(f *dto.MetricFamily, labelName string) map[string]int64 {
	out := map[string]int64{}
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		v, ok := labelValue(m, labelName)
		if !ok || m.GetCounter() == nil {
			continue
		}
		out[v] += int64(m.GetCounter().GetValue())
	}
	return out
}

// errorRate is the share of requests answered with a 4xx or 5xx status.
func errorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errs float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		if code, ok := labelValue(m, "status_code"); ok && len(code) > 0 && code[0] >= '4' {
			errs += v
		}
	}
	if total == 0 {
		return 0
	}
	return errs / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// Every sample landed in +Inf; report the last finite bound.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
