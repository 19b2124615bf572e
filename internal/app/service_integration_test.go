package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/reputation/internal/app"
	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func submit(ctx context.Context, svc *service.Service, tx, rated string, pos, neg []string) error {
	_, err := svc.SubmitEvaluation(ctx, service.Submission{
		RaterID:       "rater-" + tx,
		RatedID:       rated,
		TransactionID: tx,
		Positive:      pos,
		Negative:      neg,
	})
	return err
}

func TestServiceIntegration(t *testing.T) {
	backends := map[string]func() service.Option{
		"memory": func() service.Option { return service.WithShardCount(4) },
		"sqlite": func() service.Option {
			return service.WithSQLitePath(filepath.Join(t.TempDir(), "ranking.db"))
		},
	}

	for name, backend := range backends {
		Convey("Given a started service on the "+name+" store", t, func() {
			svc, err := startService(backend(), service.WithShardCount(4), service.WithQueueSize(1000))
			So(err, ShouldBeNil)
			defer svc.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			Convey("When an unknown party is read", func() {
				stats, err := svc.GetStatistics(ctx, "newcomer")

				Convey("Then a fresh record is reported", func() {
					So(err, ShouldBeNil)
					So(stats.PartyID, ShouldEqual, "newcomer")
					So(stats.Score, ShouldEqual, 0)
					So(stats.Tier, ShouldEqual, model.TierBronze)
					So(stats.TotalEvaluations, ShouldEqual, 0)
					So(stats.Positive, ShouldBeEmpty)
					So(stats.Negative, ShouldBeEmpty)
				})

				Convey("And reading again gives the same answer", func() {
					again, err := svc.GetStatistics(ctx, "newcomer")
					So(err, ShouldBeNil)
					So(again, ShouldResemble, stats)
				})
			})

			Convey("When the party id is blank", func() {
				_, err := svc.GetSummary(ctx, " ")

				Convey("Then ErrInvalidInput is returned", func() {
					So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				})
			})

			Convey("When the same transaction is submitted twice", func() {
				first := submit(ctx, svc, "tx-dup", "alice", []string{"pagamento_pontual"}, nil)
				second := submit(ctx, svc, "tx-dup", "alice", []string{"pagamento_pontual"}, nil)

				Convey("Then the second is a duplicate and counted once", func() {
					So(first, ShouldBeNil)
					So(errors.Is(second, service.ErrDuplicateEvaluation), ShouldBeTrue)

					view, err := svc.GetRankingView(ctx, "alice")
					So(err, ShouldBeNil)
					So(view.TotalEvaluations, ShouldEqual, 1)
					So(view.Score, ShouldEqual, 8)
				})
			})

			Convey("When a mixed evaluation lands on a new party", func() {
				err := submit(ctx, svc, "tx-mixed", "bob", []string{"ajudou_no_processo"}, []string{"pagamento_atrasado"})

				Convey("Then the score is clamped at zero", func() {
					So(err, ShouldBeNil)
					view, err := svc.GetRankingView(ctx, "bob")
					So(err, ShouldBeNil)
					So(view.Score, ShouldEqual, 0)
					So(view.Tier, ShouldEqual, model.TierBronze)
					So(view.TotalEvaluations, ShouldEqual, 1)
					So(view.NegativeAspects, ShouldResemble, []types.LabeledPercentage{
						{Label: "Pagamento atrasado", Percentage: 100},
					})
				})
			})

			Convey("When three evaluations share aspects", func() {
				So(submit(ctx, svc, "tx-a", "carol", []string{"ajudou_no_processo", "foi_educado"}, nil), ShouldBeNil)
				So(submit(ctx, svc, "tx-b", "carol", []string{"ajudou_no_processo", "pagamento_pontual"}, nil), ShouldBeNil)
				So(submit(ctx, svc, "tx-c", "carol", []string{"foi_educado"}, nil), ShouldBeNil)

				Convey("Then statistics count evaluations per aspect", func() {
					stats, err := svc.GetStatistics(ctx, "carol")
					So(err, ShouldBeNil)
					So(stats.TotalEvaluations, ShouldEqual, 3)
					So(stats.Score, ShouldEqual, 24)
					So(stats.Positive, ShouldHaveLength, 3)
					So(stats.Positive[0].Aspect, ShouldEqual, "ajudou_no_processo")
					So(stats.Positive[0].Quantity, ShouldEqual, 2)
					So(stats.Positive[0].Percentage, ShouldEqual, 67)
					So(stats.Positive[1].Aspect, ShouldEqual, "foi_educado")
					So(stats.Positive[1].Percentage, ShouldEqual, 67)
					So(stats.Positive[2].Aspect, ShouldEqual, "pagamento_pontual")
					So(stats.Positive[2].Percentage, ShouldEqual, 33)
				})

				Convey("And the summary keeps ties in catalog order", func() {
					sum, err := svc.GetSummary(ctx, "carol")
					So(err, ShouldBeNil)
					So(sum.Positive, ShouldHaveLength, 3)
					So(sum.Positive[0].Aspect, ShouldEqual, "ajudou_no_processo")
					So(sum.Positive[1].Aspect, ShouldEqual, "foi_educado")
				})

				Convey("And the ranking view withholds positives", func() {
					view, err := svc.GetRankingView(ctx, "carol")
					So(err, ShouldBeNil)
					So(view.NegativeAspects, ShouldBeEmpty)
				})
			})

			Convey("When a party climbs through the tiers", func() {
				for i := range 12 {
					err := submit(ctx, svc, fmt.Sprintf("tx-climb-%d", i), "dave",
						[]string{"pagamento_pontual", "ajudou_no_processo"}, nil)
					So(err, ShouldBeNil)
				}

				Convey("Then the score saturates at 100 in Diamond", func() {
					view, err := svc.GetRankingView(ctx, "dave")
					So(err, ShouldBeNil)
					So(view.Score, ShouldEqual, 100)
					So(view.Tier, ShouldEqual, model.TierDiamond)
					So(view.TotalEvaluations, ShouldEqual, 12)
				})

				Convey("And the leaderboard ranks it first", func() {
					So(submit(ctx, svc, "tx-other", "erin", []string{"foi_educado"}, nil), ShouldBeNil)

					board, err := svc.Leaderboard(ctx, 10)
					So(err, ShouldBeNil)
					So(len(board), ShouldBeGreaterThanOrEqualTo, 2)
					So(board[0].PartyID, ShouldEqual, "dave")
					So(board[0].Rank, ShouldEqual, 1)
					So(board[1].PartyID, ShouldEqual, "erin")
				})
			})

			Convey("When the leaderboard limit is not positive", func() {
				_, err := svc.Leaderboard(ctx, 0)

				Convey("Then ErrInvalidInput is returned", func() {
					So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				})
			})

			Convey("When many evaluations of one party arrive concurrently", func() {
				const n = 20
				var wg sync.WaitGroup
				var failures atomic.Int32
				for i := range n {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						if err := submit(ctx, svc, fmt.Sprintf("tx-par-%d", i), "frank", []string{"foi_educado"}, nil); err != nil {
							failures.Add(1)
						}
					}(i)
				}
				wg.Wait()

				Convey("Then no score update is lost", func() {
					So(failures.Load(), ShouldEqual, 0)
					view, err := svc.GetRankingView(ctx, "frank")
					So(err, ShouldBeNil)
					So(view.TotalEvaluations, ShouldEqual, n)
					So(view.Score, ShouldEqual, n*3)
					So(view.Tier, ShouldEqual, model.TierSilver)
				})
			})

			Convey("When one transaction is raced by many callers", func() {
				const n = 20
				var wg sync.WaitGroup
				var ok, dup atomic.Int32
				for range n {
					wg.Add(1)
					go func() {
						defer wg.Done()
						err := submit(ctx, svc, "tx-race", "grace", []string{"foi_educado"}, nil)
						switch {
						case err == nil:
							ok.Add(1)
						case errors.Is(err, service.ErrDuplicateEvaluation):
							dup.Add(1)
						}
					}()
				}
				wg.Wait()

				Convey("Then exactly one is applied", func() {
					So(ok.Load(), ShouldEqual, 1)
					So(dup.Load(), ShouldEqual, n-1)

					view, err := svc.GetRankingView(ctx, "grace")
					So(err, ShouldBeNil)
					So(view.TotalEvaluations, ShouldEqual, 1)
					So(view.Score, ShouldEqual, 3)
				})
			})

			Convey("When the caller context is already cancelled", func() {
				cctx, ccancel := context.WithCancel(ctx)
				ccancel()
				err := submit(cctx, svc, "tx-cancel", "heidi", []string{"foi_educado"}, nil)

				Convey("Then the submission fails and can be retried", func() {
					So(err, ShouldNotBeNil)
					So(errors.Is(err, service.ErrDuplicateEvaluation), ShouldBeFalse)

					So(eventually(func() bool {
						return submit(ctx, svc, "tx-cancel", "heidi", []string{"foi_educado"}, nil) == nil
					}), ShouldBeTrue)
				})
			})
		})
	}
}

// eventually polls cond for up to two seconds.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
