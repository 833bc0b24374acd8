// Command eventdemo wires an Engine end to end: config loading, a sample
// registration, Prometheus metrics, CloudEvents recording, and a cron
// heartbeat publisher. It exists to exercise the ambient and domain stack
// from a runnable binary, the way the rest of this module's dependencies
// are otherwise only exercised from tests.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	eventbus "github.com/GoCodeAlone/eventbus-manager"
)

// HeartbeatEvent is published on a cron schedule to demonstrate dispatch,
// sticky retention, and metrics in one place.
type HeartbeatEvent struct {
	At time.Time
}

func newRootCommand() *cobra.Command {
	var configPath string
	var metricsAddr string
	var cronSpec string

	root := &cobra.Command{
		Use:   "eventdemo",
		Short: "Run a demo eventbus engine with a heartbeat publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, metricsAddr, cronSpec)
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to a TOML EngineConfig file (optional)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	root.Flags().StringVar(&cronSpec, "cron", "@every 5s", "cron spec for the heartbeat publisher")

	return root
}

func run(ctx context.Context, configPath, metricsAddr, cronSpec string) error {
	cfg := eventbus.DefaultEngineConfig()
	if configPath != "" {
		loaded, err := eventbus.LoadEngineConfigTOML(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	logger := eventbus.NewSlogLogger(nil)
	recorder := eventbus.NewEventRecorder("eventdemo")

	components := cfg.ToComponents()
	components.Logger = logger
	components.Recorder = recorder

	engine := eventbus.NewEngine(components)
	defer engine.Close()

	collector := eventbus.NewPrometheusCollector(engine, "eventdemo")
	prometheus.MustRegister(collector)

	heartbeatConfig := eventbus.NewConfiguration(map[string]any{
		eventbus.PriorityKey.ID(): 10,
	})

	_, err := engine.Register(&eventbus.HandlerDescriptor{
		EventType: reflect.TypeOf(HeartbeatEvent{}),
		Config:    heartbeatConfig,
		HandlerID: "eventdemo.heartbeat.logger",
		Invoke: func(_ context.Context, event eventbus.Event, _ []any) error {
			hb := event.(HeartbeatEvent)
			logger.Info("heartbeat received", "at", hb.At)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("register heartbeat handler: %w", err)
	}

	_, err = engine.Register(&eventbus.HandlerDescriptor{
		EventType: reflect.TypeOf(eventbus.DeadEvent{}),
		HandlerID: "eventdemo.deadevent.logger",
		Invoke: func(_ context.Context, event eventbus.Event, _ []any) error {
			logger.Warn("dead event", "original", fmt.Sprintf("%T", event.(eventbus.DeadEvent).Original))
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("register dead-event handler: %w", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(cronSpec, func() {
		if err := engine.Dispatch(ctx, HeartbeatEvent{At: time.Now()}, eventbus.DispatchOptions{Sticky: true, DeadEvent: true}); err != nil {
			logger.Error("dispatch heartbeat failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule heartbeat: %w", err)
	}
	c.Start()
	defer c.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		report := engine.HealthCheck()
		if report.Status != eventbus.HealthStatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, "%s: %s\n", report.Status, report.Message)
	})

	server := &http.Server{Addr: metricsAddr, Handler: mux}
	logger.Info("eventdemo listening", "addr", metricsAddr)
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
