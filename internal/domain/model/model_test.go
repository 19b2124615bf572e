package model_test

import (
	"testing"
	"time"

	model "github.com/okian/reputation/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewRecord(t *testing.T) {
	convey.Convey("Given a party seen for the first time", t, func() {
		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		rec := model.NewRecord("party-1", now)

		convey.Convey("Then the record starts at zero in the lowest tier", func() {
			convey.So(rec.PartyID, convey.ShouldEqual, "party-1")
			convey.So(rec.Score, convey.ShouldEqual, 0)
			convey.So(rec.Tier, convey.ShouldEqual, model.TierBronze)
			convey.So(rec.TotalEvaluations, convey.ShouldEqual, 0)
			convey.So(rec.CreatedAt, convey.ShouldEqual, now)
			convey.So(rec.UpdatedAt, convey.ShouldEqual, now)
		})
	})
}

func TestTier(t *testing.T) {
	convey.Convey("Given the tier set", t, func() {
		convey.Convey("Then tiers are ordered from lowest to highest", func() {
			convey.So(model.Tiers(), convey.ShouldResemble, []model.Tier{
				model.TierBronze, model.TierSilver, model.TierGold, model.TierPlatinum, model.TierDiamond,
			})
		})

		convey.Convey("Then only known tiers are valid", func() {
			convey.So(model.TierGold.Valid(), convey.ShouldBeTrue)
			convey.So(model.Tier("Mythril").Valid(), convey.ShouldBeFalse)
			convey.So(model.TierDiamond.String(), convey.ShouldEqual, "Diamond")
		})
	})
}
