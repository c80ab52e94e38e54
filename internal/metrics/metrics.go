// Package metrics exports room service counters to Prometheus.
package metrics

import (
	"errors"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements room.Observer.
type Collector struct {
	transitions *prometheus.CounterVec
	buzzes      *prometheus.CounterVec
	retries     *prometheus.CounterVec
	tickers     prometheus.Gauge
}

var _ room.Observer = (*Collector)(nil)

// New registers the buzzbox metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buzzbox",
			Name:      "transitions_total",
			Help:      "Room commands by operation and outcome.",
		}, []string{"op", "result"}),
		buzzes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buzzbox",
			Name:      "buzz_attempts_total",
			Help:      "Buzz attempts by outcome.",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buzzbox",
			Name:      "write_conflicts_total",
			Help:      "Room writes retried after losing a revision race.",
		}, []string{"op"}),
		tickers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "buzzbox",
			Name:      "room_timers_running",
			Help:      "Rooms whose round timer is counting down in this process.",
		}),
	}

	reg.MustRegister(c.transitions, c.buzzes, c.retries, c.tickers)

	return c
}

func (c *Collector) Transition(op string, err error) {
	c.transitions.WithLabelValues(op, result(err)).Inc()
}

func (c *Collector) Buzz(err error) {
	if err == nil {
		c.buzzes.WithLabelValues("accepted").Inc()
		return
	}
	if reason := room.ReasonOf(err); reason != "" {
		c.buzzes.WithLabelValues(string(reason)).Inc()
		return
	}
	c.buzzes.WithLabelValues("error").Inc()
}

func (c *Collector) Retry(op string) {
	c.retries.WithLabelValues(op).Inc()
}

func (c *Collector) TickerStarted() {
	c.tickers.Inc()
}

func (c *Collector) TickerStopped() {
	c.tickers.Dec()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, room.ErrValidation):
		return "validation"
	case errors.Is(err, room.ErrPreconditionFailed):
		return "precondition"
	case errors.Is(err, room.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, room.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
