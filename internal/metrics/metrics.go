// Package metrics exposes the process-wide Prometheus instruments.
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
	// TickDuration observes how long one simulation tick took.
	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netplay_tick_duration_seconds",
		Help:    "Wall time of one simulation tick.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	}, []string{"service"})

	// MessagesReceived counts decoded application messages by kind.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netplay_messages_received_total",
		Help: "Application messages received, by service and message kind.",
	}, []string{"service", "kind"})

	// UnknownMessages counts messages with no registered handler.
	UnknownMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netplay_unknown_messages_total",
		Help: "Messages dropped because no handler is registered.",
	}, []string{"service"})

	// ConnectedPeers tracks admitted transport peers.
	ConnectedPeers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netplay_connected_peers",
		Help: "Currently admitted transport peers.",
	}, []string{"service"})

	// LoginOutcomes counts login attempts by result code.
	LoginOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netplay_login_outcomes_total",
		Help: "Login attempts by outcome.",
	}, []string{"result"})

	// GameAuthOutcomes counts game-join attempts by result code.
	GameAuthOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netplay_game_auth_outcomes_total",
		Help: "Game-join attempts by outcome.",
	}, []string{"result"})

	// InputsRejected counts player inputs refused by validation.
	InputsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netplay_inputs_rejected_total",
		Help: "Player inputs rejected before simulation, by reason.",
	}, []string{"reason"})

	// Mispredictions counts client reconciliations that had to rewind.
	Mispredictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netplay_mispredictions_total",
		Help: "Client-side predictions corrected by the authoritative state.",
	})

	// ReplayedInputs counts inputs re-simulated during reconciliation.
	ReplayedInputs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netplay_replayed_inputs_total",
		Help: "Pending inputs replayed on top of a corrected state.",
	})

	// PacketsInUse tracks packets rented from the pool and not yet returned.
	PacketsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netplay_packets_in_use",
		Help: "Packets currently rented from the packet pool.",
	})
)

// Serve runs a Prometheus scrape endpoint on addr until ctx is canceled.
// An empty addr disables the listener.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
