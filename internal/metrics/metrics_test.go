package metrics

import (
	"errors"
	"testing"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.Transition("toggle_main", nil)
	c.Transition("toggle_main", nil)
	c.Transition("add_team", &room.Error{Kind: room.ErrValidation, Reason: room.ReasonEmptyName})
	c.Transition("get_room", errors.New("boom"))

	c.Buzz(nil)
	c.Buzz(&room.Error{Kind: room.ErrPreconditionFailed, Reason: room.ReasonDuplicateBuzz})
	c.Buzz(errors.New("boom"))

	c.Retry("attempt_buzz")

	c.TickerStarted()
	c.TickerStarted()
	c.TickerStopped()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("toggle_main", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("add_team", "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("get_room", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.buzzes.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.buzzes.WithLabelValues("duplicate buzz")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.buzzes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("attempt_buzz")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tickers))
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
