package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	t.Run("PaymentCreated", func(t *testing.T) {
		ok := testutil.ToFloat64(paymentsCreated.WithLabelValues("ok"))
		failed := testutil.ToFloat64(paymentsCreated.WithLabelValues("error"))

		PaymentCreated(nil)
		PaymentCreated(errors.New("boom"))
		PaymentCreated(errors.New("boom"))

		assert.Equal(t, ok+1, testutil.ToFloat64(paymentsCreated.WithLabelValues("ok")))
		assert.Equal(t, failed+2, testutil.ToFloat64(paymentsCreated.WithLabelValues("error")))
	})

	t.Run("PollFetched", func(t *testing.T) {
		before := testutil.ToFloat64(pollFetches.WithLabelValues("error"))
		PollFetched(errors.New("timeout"))
		assert.Equal(t, before+1, testutil.ToFloat64(pollFetches.WithLabelValues("error")))
	})

	t.Run("TerminalStatus", func(t *testing.T) {
		before := testutil.ToFloat64(terminalStatuses.WithLabelValues("refunded"))
		TerminalStatus("refunded")
		assert.Equal(t, before+1, testutil.ToFloat64(terminalStatuses.WithLabelValues("refunded")))
	})

	t.Run("PollTickSkipped", func(t *testing.T) {
		before := testutil.ToFloat64(pollSkippedTicks)
		PollTickSkipped()
		assert.Equal(t, before+1, testutil.ToFloat64(pollSkippedTicks))
	})
}

func TestActivePollers(t *testing.T) {
	before := testutil.ToFloat64(activePollers)

	PollerStarted()
	PollerStarted()
	assert.Equal(t, before+2, testutil.ToFloat64(activePollers))

	PollerStopped()
	PollerStopped()
	assert.Equal(t, before, testutil.ToFloat64(activePollers))
}

func TestTimer(t *testing.T) {
	timer := StartTimer()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 2*time.Millisecond)

	assert.NotPanics(t, func() {
		timer.ObserveFetch()
	})
}
