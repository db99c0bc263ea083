// Package metrics exposes forwarder counters as Prometheus collectors.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names.
const (
	CyclesTotal        = "snmpfwd_cycles_total"
	CycleDuration      = "snmpfwd_cycle_duration_seconds"
	PollsTotal         = "snmpfwd_polls_total"
	DeliveriesTotal    = "snmpfwd_deliveries_total"
	RetriesTotal       = "snmpfwd_retries_total"
	DeliveryLatency    = "snmpfwd_delivery_latency_seconds"
	LastCycleTimestamp = "snmpfwd_last_cycle_timestamp_seconds"
)

// Operation label values.
const (
	OpPoll    = "poll"
	OpDeliver = "deliver"
)

// Metrics groups the forwarder's collectors.
type Metrics struct {
	cycles          prometheus.Counter
	cycleDuration   prometheus.Histogram
	polls           *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	retries         *prometheus.CounterVec
	deliveryLatency prometheus.Histogram
	lastCycle       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: CyclesTotal,
			Help: "Polling cycles started.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    CycleDuration,
			Help:    "Wall time of one polling cycle, all OIDs included.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: PollsTotal,
			Help: "SNMP polls by final outcome (ok or failure kind).",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: DeliveriesTotal,
			Help: "Record deliveries by final outcome (ok or failure kind).",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RetriesTotal,
			Help: "Backoff waits taken, by operation.",
		}, []string{"operation"}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    DeliveryLatency,
			Help:    "Time from sampling to successful delivery, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: LastCycleTimestamp,
			Help: "Unix time the most recent cycle started.",
		}),
	}
	reg.MustRegister(m.cycles, m.cycleDuration, m.polls, m.deliveries, m.retries, m.deliveryLatency, m.lastCycle)
	return m
}

// CycleStarted records the start of a cycle at t.
func (m *Metrics) CycleStarted(t time.Time) {
	m.cycles.Inc()
	m.lastCycle.Set(float64(t.UnixNano()) / float64(time.Second))
}

// CycleFinished observes a cycle's duration.
func (m *Metrics) CycleFinished(d time.Duration) {
	m.cycleDuration.Observe(d.Seconds())
}

// Poll counts a poll outcome; outcome is "ok" or a failure kind.
func (m *Metrics) Poll(outcome string) {
	m.polls.WithLabelValues(outcome).Inc()
}

// Delivery counts a delivery outcome; outcome is "ok" or a failure kind.
func (m *Metrics) Delivery(outcome string) {
	m.deliveries.WithLabelValues(outcome).Inc()
}

// Retry counts one backoff wait for op.
func (m *Metrics) Retry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

// Delivered observes sample-to-delivery latency.
func (m *Metrics) Delivered(latency time.Duration) {
	m.deliveryLatency.Observe(latency.Seconds())
}

// Summary gathers g and returns one total per metric family: counters and
// gauges are summed across label sets, histograms contribute their sample
// count.
func Summary(g prometheus.Gatherer) (map[string]float64, error) {
	mfs, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}
	out := make(map[string]float64, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = sumFamily(mf)
	}
	return out, nil
}

// sumFamily adds up every sample in mf. Returns 0 for a nil family.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Histogram != nil:
			total += float64(m.Histogram.GetSampleCount())
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

// WriteText writes the gathered families in the Prometheus text format,
// sorted by name.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
