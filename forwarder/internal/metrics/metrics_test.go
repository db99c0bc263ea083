package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CycleStarted(time.Unix(100, 0))
	m.CycleStarted(time.Unix(105, 0))
	m.Poll("ok")
	m.Poll("ok")
	m.Poll("oid_not_found")
	m.Delivery("ok")
	m.Delivery("auth_error")
	m.Retry(OpDeliver)
	m.Retry(OpDeliver)
	m.Retry(OpPoll)
	m.Delivered(150 * time.Millisecond)
	m.CycleFinished(2 * time.Second)

	if got := testutil.ToFloat64(m.cycles); got != 2 {
		t.Errorf("cycles: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lastCycle); got != 105 {
		t.Errorf("last cycle: got %v, want 105", got)
	}
	if got := testutil.ToFloat64(m.polls.WithLabelValues("ok")); got != 2 {
		t.Errorf("polls ok: got %v", got)
	}
	if got := testutil.ToFloat64(m.polls.WithLabelValues("oid_not_found")); got != 1 {
		t.Errorf("polls oid_not_found: got %v", got)
	}
	if got := testutil.ToFloat64(m.retries.WithLabelValues(OpDeliver)); got != 2 {
		t.Errorf("deliver retries: got %v", got)
	}
	if n := testutil.CollectAndCount(m.deliveryLatency); n != 1 {
		t.Errorf("latency series: got %d", n)
	}
}

func TestSummary(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Poll("ok")
	m.Poll("agent_unreachable")
	m.Delivery("ok")
	m.CycleFinished(time.Second)
	m.CycleFinished(time.Second)

	sum, err := Summary(reg)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum[PollsTotal] != 2 {
		t.Errorf("%s: got %v, want 2", PollsTotal, sum[PollsTotal])
	}
	if sum[DeliveriesTotal] != 1 {
		t.Errorf("%s: got %v, want 1", DeliveriesTotal, sum[DeliveriesTotal])
	}
	if sum[CycleDuration] != 2 {
		t.Errorf("%s sample count: got %v, want 2", CycleDuration, sum[CycleDuration])
	}
}

func TestWriteText_RoundTrips(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Delivery("ok")
	m.Delivery("ok")
	m.Delivery("server_error")

	var buf bytes.Buffer
	if err := WriteText(&buf, reg); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if !strings.Contains(buf.String(), DeliveriesTotal+`{outcome="ok"} 2`) {
		t.Errorf("text output missing delivery counter:\n%s", buf.String())
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := sumFamily(mfs[DeliveriesTotal]); got != 3 {
		t.Errorf("parsed deliveries: got %v, want 3", got)
	}
	if got := sumFamily(nil); got != 0 {
		t.Errorf("sumFamily(nil): got %v", got)
	}
}
