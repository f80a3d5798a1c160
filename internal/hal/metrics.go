package hal

import (
	"errors"
	"time"

	"github.com/fxnlabs/pal/internal/metrics"
)

const (
	resultOK             = "ok"
	resultDispatched     = "dispatched"
	resultInvalid        = "invalid"
	resultIOFailure      = "io_failure"
	resultTimeout        = "timeout"
	resultPartialFailure = "partial_failure"
	resultError          = "error"
)

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrTimeout):
		return resultTimeout
	case errors.Is(err, ErrPartialFailure):
		return resultPartialFailure
	default:
		return resultError
	}
}

func recordRun(kind Kind, result string) {
	metrics.Runs.WithLabelValues(kind.String(), result).Inc()
}

func recordLaunchFailure(kind Kind) {
	metrics.LaunchFailures.WithLabelValues(kind.String()).Inc()
}

func recordPoll(kind Kind) {
	metrics.WaitPolls.WithLabelValues(kind.String()).Inc()
}

func recordFaults(kind Kind, n int) {
	metrics.SlotFaults.WithLabelValues(kind.String()).Add(float64(n))
}

func observeWait(kind Kind, d time.Duration) {
	metrics.WaitDuration.WithLabelValues(kind.String()).Observe(float64(d) / float64(time.Millisecond))
}

func teamOpened() {
	metrics.TeamsOpen.Inc()
}

func teamClosed() {
	metrics.TeamsOpen.Dec()
}
