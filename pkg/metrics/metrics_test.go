package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When a manager is created with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its collectors are registered under the namespace", func() {
				So(m, ShouldNotBeNil)
				m.evaluationsApplied.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_unit_evaluations_applied_total"], ShouldBeTrue)
			})
		})

		Convey("When two managers share a registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When business metrics are recorded", func() {
			before := testutil.ToFloat64(globalManager.evaluationsDuplicate)
			RecordEvaluationDuplicate()
			RecordTierTransition("Bronze", "Silver")
			RecordTierTransition("Bronze", "Silver")

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.evaluationsDuplicate), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.tierTransitions.WithLabelValues("Bronze", "Silver")), ShouldBeGreaterThanOrEqualTo, 2)
			})
		})

		Convey("When gauges are updated", func() {
			UpdatePartiesTotal(7)
			UpdateQueueLength(3)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.partiesTotal), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueLength), ShouldEqual, 3)
			})
		})

		Convey("When the remaining recorders are called", func() {
			So(func() {
				RecordEvaluationSubmitted()
				RecordEvaluationApplied()
				RecordEvaluationRejected("invalid_input")
				RecordScoreDelta(-5)
				RecordStatisticsRead("summary")
				RecordStoreLatency("memory", "find_record", 0.2)
				RecordStoreError("sqlite", "insert_evaluation")
				UpdateClaimCacheSize(10)
				UpdateQueueCapacity(100)
				RecordQueueEnqueue()
				RecordQueueEnqueueError("full")
				UpdateWorkerCount(4)
				RecordApplyLatency(1.5)
				RecordWorkerError()
				RecordHTTPRequest("catalog", "GET", "200")
				RecordHTTPRequestDuration("catalog", "GET", "200", 2)
				RecordHTTPRateLimited("evaluations")
				RecordErrorByComponent("store", "timeout")
				RecordErrorByEndpoint("evaluations", "POST", "client_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			Convey("Then the registry can be gathered", func() {
				_, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
			})
		})
	})
}
