package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDispatchMetrics(t *testing.T) {
	t.Run("Runs", func(t *testing.T) {
		before := testutil.ToFloat64(Runs.WithLabelValues("threadpool", "ok"))
		Runs.WithLabelValues("threadpool", "ok").Inc()
		Runs.WithLabelValues("threadpool", "ok").Inc()
		assert.Equal(t, before+2, testutil.ToFloat64(Runs.WithLabelValues("threadpool", "ok")))
	})

	t.Run("LaunchFailures", func(t *testing.T) {
		before := testutil.ToFloat64(LaunchFailures.WithLabelValues("accelerator"))
		LaunchFailures.WithLabelValues("accelerator").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(LaunchFailures.WithLabelValues("accelerator")))
	})

	t.Run("TeamsOpen", func(t *testing.T) {
		before := testutil.ToFloat64(TeamsOpen)
		TeamsOpen.Inc()
		TeamsOpen.Inc()
		TeamsOpen.Dec()
		assert.Equal(t, before+1, testutil.ToFloat64(TeamsOpen))
		TeamsOpen.Dec()
	})

	t.Run("WaitDuration", func(t *testing.T) {
		// Histograms can't be read back with ToFloat64, just check observation works
		assert.NotPanics(t, func() {
			WaitDuration.WithLabelValues("threadpool").Observe(1.5)
			WaitDuration.WithLabelValues("accelerator").Observe(250)
		})
		assert.Equal(t, 2, testutil.CollectAndCount(WaitDuration))
	})
}

func TestMetricsRegistration(t *testing.T) {
	// Ensure all metrics are properly registered
	collectors := []prometheus.Collector{
		EndpointResponses,
		Runs,
		LaunchFailures,
		WaitDuration,
		WaitPolls,
		SlotFaults,
		TeamsOpen,
		BenchRunDuration,
	}

	for _, c := range collectors {
		err := prometheus.Register(c)
		var already prometheus.AlreadyRegisteredError
		assert.ErrorAs(t, err, &already)
	}
}

func TestMiddleware(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), "/teapot")

	before := testutil.ToFloat64(EndpointResponses.WithLabelValues("/teapot", "418"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/teapot", "418")))
}

func BenchmarkMetricsObservation(b *testing.B) {
	b.Run("ObserveWait", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			WaitDuration.WithLabelValues("threadpool").Observe(float64(i % 1000))
		}
	})

	b.Run("IncRuns", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			Runs.WithLabelValues("threadpool", "ok").Inc()
		}
	})
}
