package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/api"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/config"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/delivery"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/formatter"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/metrics"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/sampler"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/scheduler"
	"github.com/snmpfwd/snmpfwd/forwarder/internal/status"
)

// options are the command-line flags.
type options struct {
	envFile      string
	once         bool
	printMetrics bool
}

func main() {
	var opts options
	flag.StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "optional .env file; process environment takes precedence")
	flag.BoolVar(&opts.once, "once", false, "run a single polling cycle and exit")
	flag.BoolVar(&opts.printMetrics, "print-metrics", false, "write final metrics in Prometheus text format to stderr on exit")
	flag.Parse()

	os.Exit(run(opts))
}

// run wires and runs the forwarder and returns the process exit code:
// 0 after a graceful stop or a -once cycle, 1 on a startup failure.
// Deferred cleanup always runs before the caller exits.
func run(opts options) int {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("snmpfwd starting", "env_file", opts.envFile)

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}

	logger, closeLog := newLogger(cfg.Log, level)
	defer closeLog() //nolint:errcheck
	slog.SetDefault(logger)

	slog.Info("config loaded",
		"target", cfg.SNMP.Target,
		"port", cfg.SNMP.Port,
		"oids", len(cfg.OIDs),
		"poll_interval", cfg.PollInterval,
		"api_endpoint", cfg.API.Endpoint,
		"workers", cfg.Workers,
	)

	units, err := formatter.LoadUnitMap(cfg.UnitMapFile)
	if err != nil {
		slog.Error("failed to load unit map", "path", cfg.UnitMapFile, "err", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Status store with background TTL eviction.
	st := status.New(cfg.Status.TTL)
	go st.Run(ctx)

	var httpSrv *http.Server
	if cfg.Status.Addr != "" {
		lis, err := net.Listen("tcp", cfg.Status.Addr)
		if err != nil {
			slog.Error("failed to listen on status address", "addr", cfg.Status.Addr, "err", err)
			return 1
		}
		httpSrv = &http.Server{
			Handler: api.New(st, api.Options{
				Gatherer:  reg,
				KeyHeader: cfg.Status.KeyHeader,
				APIKey:    cfg.Status.APIKey,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("status API listening", "addr", lis.Addr().String())
			if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status API stopped", "err", err)
			}
		}()
	}

	if cs := delivery.CheckCert(ctx, cfg.API.Endpoint, cfg.API.InsecureSkipVerify); cs != nil {
		switch cs.Status {
		case "ok":
			slog.Debug("api certificate ok", "endpoint", cs.Endpoint, "days_left", cs.DaysLeft)
		case "unreachable":
			slog.Warn("api endpoint unreachable at startup", "endpoint", cs.Endpoint)
		default:
			slog.Warn("api certificate needs attention",
				"endpoint", cs.Endpoint,
				"status", cs.Status,
				"days_left", cs.DaysLeft,
				"issuer", cs.Issuer,
				"not_after", cs.NotAfter,
			)
		}
	}

	// Hot reload applies the log level only; everything else needs a restart.
	if !opts.once {
		go func() {
			if err := config.Watch(ctx, opts.envFile, func(updated *config.Config) {
				level.Set(updated.Log.SlogLevel())
				slog.Info("config hot-reloaded", "log_level", updated.Log.Level)
				if restartRequired(cfg, updated) {
					slog.Warn("config changes beyond LOG_LEVEL need a restart to take effect")
				}
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	loop, err := scheduler.New(cfg,
		sampler.New(cfg.SNMP),
		delivery.New(cfg.API),
		formatter.New(units),
		scheduler.WithMetrics(m),
		scheduler.WithStatus(st),
	)
	if err != nil {
		slog.Error("failed to build scheduler", "err", err)
		return 1
	}
	defer loop.Close()

	if opts.once {
		loop.RunOnce(ctx)
	} else {
		loop.Run(ctx)
	}

	slog.Info("snmpfwd shutting down")
	if httpSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	if sum, err := metrics.Summary(reg); err == nil {
		slog.Info("final counters",
			"cycles", sum[metrics.CyclesTotal],
			"polls", sum[metrics.PollsTotal],
			"deliveries", sum[metrics.DeliveriesTotal],
			"retries", sum[metrics.RetriesTotal],
		)
	}
	if opts.printMetrics {
		if err := metrics.WriteText(os.Stderr, reg); err != nil {
			slog.Error("failed to write metrics", "err", err)
		}
	}
	return 0
}

// restartRequired reports whether updated differs from current in anything
// other than the log settings.
func restartRequired(current, updated *config.Config) bool {
	a, b := *current, *updated
	a.Log, b.Log = config.LogConfig{}, config.LogConfig{}
	return !reflect.DeepEqual(a, b)
}
