package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/config"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/delivery"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/formatter"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/metrics"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/retry"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/sampler"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/status"
	"github.com/snmpfwd/snmpfwd/pkg/types"
)

// kindCancelled labels outcomes cut short by the stop signal.
const kindCancelled = "cancelled"

// Report summarizes one finished cycle.
type Report struct {
	ID        string
	Start     time.Time
	Duration  time.Duration
	Delivered int
	Skipped   int
	Failed    int
}

// Loop is the polling scheduler. Create with New; release with Close.
type Loop struct {
	cfg     *config.Config
	sampler sampler.Sampler
	client  delivery.Deliverer
	format  *formatter.Formatter
	pool    *ants.Pool

	now        func() time.Time
	sleep      retry.SleepFunc // interval waits
	retrySleep retry.SleepFunc // backoff waits
	rand       func() float64
	newID      func() string

	metrics *metrics.Metrics
	status  *status.Store
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithSleep replaces the wait between cycles.
func WithSleep(fn retry.SleepFunc) Option {
	return func(l *Loop) { l.sleep = fn }
}

// WithRetrySleep replaces the backoff wait used by poll and delivery retries.
func WithRetrySleep(fn retry.SleepFunc) Option {
	return func(l *Loop) { l.retrySleep = fn }
}

// WithRand replaces the jitter source.
func WithRand(fn func() float64) Option {
	return func(l *Loop) { l.rand = fn }
}

// WithMetrics records cycle, poll and delivery outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithStatus records per-OID outcomes and cycle summaries into st.
func WithStatus(st *status.Store) Option {
	return func(l *Loop) { l.status = st }
}

// New builds a Loop over cfg.OIDs. cfg.Workers bounds concurrent SNMP and
// HTTP calls.
func New(cfg *config.Config, s sampler.Sampler, c delivery.Deliverer, f *formatter.Formatter, opts ...Option) (*Loop, error) {
	if cfg == nil || s == nil || c == nil {
		return nil, errors.New("scheduler: config, sampler and deliverer are required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("scheduler: create worker pool: %w", err)
	}
	if f == nil {
		f = formatter.New(nil)
	}

	l := &Loop{
		cfg:        cfg,
		sampler:    s,
		client:     c,
		format:     f,
		pool:       pool,
		now:        time.Now,
		sleep:      retry.Sleep,
		retrySleep: retry.Sleep,
		rand:       rand.Float64, //nolint:gosec // jitter only
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = metrics.New(prometheus.NewRegistry())
	}
	if l.status == nil {
		ttl := cfg.Status.TTL
		if ttl <= 0 {
			ttl = config.DefaultStatusTTL
		}
		l.status = status.New(ttl)
	}
	return l, nil
}

// Close releases the worker pool.
func (l *Loop) Close() {
	l.pool.Release()
}

// Run executes cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		start := l.now()
		l.RunOnce(ctx)

		wait := l.cfg.PollInterval - l.now().Sub(start)
		if wait <= 0 {
			slog.Debug("scheduler: cycle overran interval", "interval", l.cfg.PollInterval)
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return
		}
	}
}

// RunOnce runs a single cycle over every configured OID and waits for all of
// them to finish.
func (l *Loop) RunOnce(ctx context.Context) Report {
	rep := Report{ID: l.newID(), Start: l.now()}
	l.metrics.CycleStarted(rep.Start)
	slog.Debug("scheduler: cycle started", "cycle", rep.ID, "oids", len(l.cfg.OIDs))

	ioCtx := context.WithoutCancel(ctx)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, oid := range l.cfg.OIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := l.process(ctx, ioCtx, rep.ID, oid)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case status.OutcomeDelivered:
				rep.Delivered++
			case status.OutcomeSkipped:
				rep.Skipped++
			default:
				rep.Failed++
			}
		}()
	}
	wg.Wait()

	rep.Duration = l.now().Sub(rep.Start)
	l.metrics.CycleFinished(rep.Duration)
	l.status.SetCycle(status.Cycle{
		ID:        rep.ID,
		StartedAt: rep.Start,
		Duration:  rep.Duration,
		Delivered: rep.Delivered,
		Skipped:   rep.Skipped,
		Failed:    rep.Failed,
	})
	slog.Info("scheduler: cycle finished",
		"cycle", rep.ID,
		"delivered", rep.Delivered,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"duration", rep.Duration,
	)
	return rep
}

// process runs poll → format → deliver for one OID and returns its outcome.
// ctx governs backoff waits; ioCtx carries the actual I/O.
func (l *Loop) process(ctx, ioCtx context.Context, cycleID, oid string) string {
	var sample *types.Sample
	poller := l.retrier(sampler.Retryable(l.cfg.Retry.Polls), metrics.OpPoll, oid)
	res, err := poller.Do(ctx, func(context.Context) error {
		ts := l.now()
		var s *types.Sample
		err := l.submit(oid, func() error {
			var perr error
			s, perr = l.sampler.Poll(ioCtx, oid)
			return perr
		})
		if err != nil {
			return err
		}
		s.Timestamp = ts
		sample = s
		return nil
	})
	if err != nil {
		kind := outcomeKind(res, err)
		l.metrics.Poll(kind)
		l.status.Put(status.Entry{
			OID:      oid,
			Outcome:  status.OutcomeSkipped,
			Kind:     kind,
			Attempts: res.Attempts,
			Error:    err.Error(),
			CycleID:  cycleID,
		})
		slog.Warn("scheduler: skipped oid",
			"cycle", cycleID,
			"oid", oid,
			"kind", kind,
			"attempts", res.Attempts,
			"err", err,
		)
		return status.OutcomeSkipped
	}
	l.metrics.Poll("ok")

	rec := l.format.Format(*sample, l.cfg.SNMP.Target, l.cfg.SNMP.Port)
	reqCtx := delivery.WithRequestID(ioCtx, cycleID+"/"+rec.OID)

	sender := l.retrier(types.Retryable, metrics.OpDeliver, oid)
	res, err = sender.Do(ctx, func(context.Context) error {
		return l.submit(oid, func() error { return l.client.Deliver(reqCtx, rec) })
	})
	if err != nil {
		kind := outcomeKind(res, err)
		l.metrics.Delivery(kind)
		l.status.Put(status.Entry{
			OID:      oid,
			Outcome:  status.OutcomeDeliveryFailed,
			Kind:     kind,
			Value:    rec.Value,
			Unit:     rec.Unit,
			Attempts: res.Attempts,
			Error:    err.Error(),
			CycleID:  cycleID,
		})
		slog.Error("scheduler: delivery failed",
			"cycle", cycleID,
			"oid", oid,
			"kind", kind,
			"attempts", res.Attempts,
			"err", err,
		)
		return status.OutcomeDeliveryFailed
	}

	l.metrics.Delivery("ok")
	l.metrics.Delivered(l.now().Sub(sample.Timestamp))
	l.status.Put(status.Entry{
		OID:      oid,
		Outcome:  status.OutcomeDelivered,
		Value:    rec.Value,
		Unit:     rec.Unit,
		Attempts: res.Attempts,
		CycleID:  cycleID,
	})
	slog.Info("scheduler: delivered",
		"cycle", cycleID,
		"oid", rec.OID,
		"value", rec.Value,
		"unit", rec.Unit,
		"attempts", res.Attempts,
	)
	return status.OutcomeDelivered
}

// submit runs fn on the worker pool and waits for its result. Only SNMP and
// HTTP calls go through the pool, so at most cfg.Workers of them are in
// flight and an OID waiting out a backoff holds no worker.
func (l *Loop) submit(oid string, fn func() error) error {
	done := make(chan error, 1)
	if err := l.pool.Submit(func() { done <- fn() }); err != nil {
		slog.Warn("scheduler: pool rejected call, running inline", "oid", oid, "err", err)
		return fn()
	}
	return <-done
}

// retrier builds a Retrier for one OID and operation from the configured policy.
func (l *Loop) retrier(classify retry.Classifier, op, oid string) *retry.Retrier {
	p := retry.Policy{
		MaxAttempts: l.cfg.Retry.MaxAttempts,
		BaseDelay:   l.cfg.Retry.BaseDelay,
		MaxDelay:    l.cfg.Retry.MaxDelay,
		Jitter:      l.cfg.Retry.Jitter,
	}
	return retry.New(p, classify,
		retry.WithSleep(l.retrySleep),
		retry.WithRand(l.rand),
		retry.OnRetry(func(attempt int, wait time.Duration, err error) {
			l.metrics.Retry(op)
			slog.Debug("scheduler: backing off",
				"op", op,
				"oid", oid,
				"attempt", attempt,
				"wait", wait,
				"err", err,
			)
		}),
	)
}

// outcomeKind labels a failed Do result with its failure kind.
func outcomeKind(res retry.Result, err error) string {
	if res.State == retry.Cancelled {
		return kindCancelled
	}
	if k := types.KindOf(err); k != "" {
		return string(k)
	}
	return "unknown"
}
