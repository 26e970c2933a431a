// Package metrics provides Prometheus metrics for the BLE OTA peripheral.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignalsTotal counts classified stack signals by name.
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ble_ota_signals_total",
		Help: "Total number of classified stack signals, by signal.",
	}, []string{"signal"})

	// TransitionsTotal counts lifecycle transitions.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ble_ota_transitions_total",
		Help: "Total number of lifecycle state transitions, by source and target state.",
	}, []string{"from", "to"})

	// SleepsTotal counts loop iterations by sleep depth entered.
	SleepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ble_ota_sleeps_total",
		Help: "Total number of main loop sleeps, by depth.",
	}, []string{"depth"})

	// DiagnosticsTotal counts surfaced errors by kind.
	DiagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ble_ota_diagnostics_total",
		Help: "Total number of reported diagnostics, by kind.",
	}, []string{"kind"})

	// HibernationsTotal counts completed hibernations by wake reason.
	HibernationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ble_ota_hibernations_total",
		Help: "Total number of hibernations, by wake reason.",
	}, []string{"reason"})

	// LifecycleState is 1 for the current lifecycle state, 0 otherwise.
	LifecycleState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ble_ota_lifecycle_state",
		Help: "Current lifecycle state (1 for the active state).",
	}, []string{"state"})
)

// SetState marks current as the only active lifecycle state.
func SetState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		LifecycleState.WithLabelValues(s).Set(v)
	}
}

// Serve exposes /metrics on addr until ctx ends.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
