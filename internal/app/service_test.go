package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/okian/reputation/internal/adapters/repository"
	service "github.com/okian/reputation/internal/app"
	"github.com/okian/reputation/internal/domain/catalog"
	"github.com/okian/reputation/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func startService(opts ...service.Option) (*service.Service, error) {
	svc := service.New(opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return svc, svc.Start(ctx)
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it is created stopped", func() {
			So(svc, ShouldNotBeNil)
			So(svc.IsStarted(), ShouldBeFalse)
			stats := svc.GetStats(context.Background())
			So(stats["started"], ShouldEqual, false)
			So(stats["strict_aspects"], ShouldEqual, true)
			So(stats["summary_top_n"], ShouldEqual, 3)
			So(stats["catalog_size"], ShouldEqual, 12)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithShardCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithSummaryTopN(5),
			service.WithStrictAspects(false),
		)

		Convey("Then the options are reflected in its stats", func() {
			stats := svc.GetStats(context.Background())
			So(stats["summary_top_n"], ShouldEqual, 5)
			So(stats["strict_aspects"], ShouldEqual, false)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc, err := startService(service.WithShardCount(2))
		defer svc.Stop()

		Convey("Then it starts successfully", func() {
			So(err, ShouldBeNil)
			So(svc.IsStarted(), ShouldBeTrue)

			stats := svc.GetStats(context.Background())
			So(stats["started"], ShouldEqual, true)
			So(stats["shards"], ShouldEqual, 2)
			So(stats["store"], ShouldEqual, "memory")
			So(stats["parties"], ShouldEqual, 0)
		})

		Convey("When starting it twice", func() {
			So(svc.Start(context.Background()), ShouldBeNil)

			Convey("Then it stays started", func() {
				So(svc.IsStarted(), ShouldBeTrue)
			})
		})

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it is marked as stopped", func() {
				So(svc.GetStats(context.Background())["started"], ShouldEqual, false)
			})

			Convey("And operations report it unavailable", func() {
				_, err := svc.GetStatistics(context.Background(), "p1")
				So(errors.Is(err, service.ErrUnavailable), ShouldBeTrue)

				_, err = svc.SubmitEvaluation(context.Background(), service.Submission{
					RaterID: "r", RatedID: "p1", TransactionID: "t1",
				})
				So(errors.Is(err, service.ErrUnavailable), ShouldBeTrue)
			})

			Convey("And stopping again is a no-op", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})

	Convey("Given a store that fails to open", t, func() {
		boom := errors.New("boom")
		svc := service.New(service.WithStoreOpener(func(context.Context) (repository.Store, error) {
			return nil, boom
		}))

		Convey("Then Start returns the error", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, boom), ShouldBeTrue)
			So(svc.IsStarted(), ShouldBeFalse)
		})
	})
}

func TestService_SubmitValidation(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, err := startService(service.WithShardCount(1))
		So(err, ShouldBeNil)
		defer svc.Stop()
		ctx := context.Background()

		valid := service.Submission{
			RaterID:       "rater",
			RatedID:       "rated",
			TransactionID: "tx-1",
			Positive:      []string{"foi_educado"},
		}

		cases := map[string]func(s *service.Submission){
			"missing rated id":       func(s *service.Submission) { s.RatedID = "  " },
			"missing transaction id": func(s *service.Submission) { s.TransactionID = "" },
			"missing rater id":       func(s *service.Submission) { s.RaterID = "" },
			"long comment":           func(s *service.Submission) { s.Comment = strings.Repeat("é", 501) },
			"unknown aspect":         func(s *service.Submission) { s.Positive = []string{"nope"} },
			"wrong polarity":         func(s *service.Submission) { s.Positive = []string{"pagamento_atrasado"} },
			"blank aspect":           func(s *service.Submission) { s.Negative = []string{" "} },
		}

		for name, mutate := range cases {
			Convey("When submitting with "+name, func() {
				sub := valid
				mutate(&sub)
				_, err := svc.SubmitEvaluation(ctx, sub)

				Convey("Then ErrInvalidInput is returned", func() {
					So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				})
			})
		}

		Convey("When an aspect has a typo", func() {
			sub := valid
			sub.Positive = []string{"pagamento_pontul"}
			_, err := svc.SubmitEvaluation(ctx, sub)

			Convey("Then the error suggests the nearest code", func() {
				So(errors.Is(err, catalog.ErrUnknownAspect), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "pagamento_pontual")
			})
		})

		Convey("When a party rates itself", func() {
			sub := valid
			sub.RaterID = sub.RatedID
			sub.TransactionID = "tx-self"
			ev, err := svc.SubmitEvaluation(ctx, sub)

			Convey("Then the evaluation is applied", func() {
				So(err, ShouldBeNil)
				So(ev.RaterID, ShouldEqual, "rated")

				view, err := svc.GetRankingView(ctx, "rated")
				So(err, ShouldBeNil)
				So(view.Score, ShouldEqual, 3)
				So(view.TotalEvaluations, ShouldEqual, 1)
			})
		})

		Convey("When the caller context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			sub := valid
			sub.TransactionID = "tx-cancelled"
			_, err := svc.SubmitEvaluation(cancelled, sub)

			Convey("Then the cancellation is returned, not a storage error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(errors.Is(err, service.ErrStorage), ShouldBeFalse)
			})

			Convey("Then the transaction can be submitted again", func() {
				_, err := svc.SubmitEvaluation(ctx, sub)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the comment has exactly 500 characters", func() {
			sub := valid
			sub.Comment = strings.Repeat("é", 500)
			_, err := svc.SubmitEvaluation(ctx, sub)

			Convey("Then it is accepted", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When aspects are written loosely and repeated", func() {
			sub := valid
			sub.TransactionID = "tx-loose"
			sub.Positive = []string{" Foi Educado", "foi-educado", "PAGAMENTO_PONTUAL"}
			ev, err := svc.SubmitEvaluation(ctx, sub)

			Convey("Then they are normalized and deduplicated", func() {
				So(err, ShouldBeNil)
				So(ev.Positive, ShouldResemble, []catalog.Code{"foi_educado", "pagamento_pontual"})
				So(ev.ID, ShouldNotBeEmpty)
			})
		})
	})

	Convey("Given a service with a default rater", t, func() {
		svc, err := startService(service.WithDefaultRaterID("anonymous"))
		So(err, ShouldBeNil)
		defer svc.Stop()

		Convey("When the rater is omitted", func() {
			ev, err := svc.SubmitEvaluation(context.Background(), service.Submission{
				RatedID: "rated", TransactionID: "tx-default",
			})

			Convey("Then the default rater is used", func() {
				So(err, ShouldBeNil)
				So(ev.RaterID, ShouldEqual, "anonymous")
			})
		})
	})

	Convey("Given a permissive service", t, func() {
		svc, err := startService(service.WithStrictAspects(false))
		So(err, ShouldBeNil)
		defer svc.Stop()

		Convey("When unknown aspects are submitted", func() {
			ev, err := svc.SubmitEvaluation(context.Background(), service.Submission{
				RaterID: "r", RatedID: "p", TransactionID: "tx-perm",
				Positive: []string{"made_up", "foi_educado"},
			})

			Convey("Then they are kept and score nothing", func() {
				So(err, ShouldBeNil)
				So(ev.Positive, ShouldResemble, []catalog.Code{"made_up", "foi_educado"})

				view, err := svc.GetRankingView(context.Background(), "p")
				So(err, ShouldBeNil)
				So(view.Score, ShouldEqual, 3)
			})
		})
	})
}

func TestService_GetCatalog(t *testing.T) {
	Convey("Given a service with a custom catalog", t, func() {
		c, err := catalog.New(
			[]catalog.Aspect{{Code: "fast", Points: 7, Label: "Fast"}},
			[]catalog.Aspect{{Code: "late", Points: -9, Label: "Late"}},
		)
		So(err, ShouldBeNil)
		svc := service.New(service.WithCatalog(c))

		Convey("Then GetCatalog lists it", func() {
			view := svc.GetCatalog()
			So(view.Positive, ShouldHaveLength, 1)
			So(view.Positive[0].Code, ShouldEqual, "fast")
			So(view.Positive[0].Points, ShouldEqual, 7)
			So(view.Negative[0].Label, ShouldEqual, "Late")
		})
	})
}
