package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When it is initialized with defaults", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a usable logger", func() {
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When it is initialized twice", func() {
			So(Init(), ShouldBeNil)
			So(Init(WithFormat(FormatJSON)), ShouldBeNil)

			Convey("Then the second configuration wins", func() {
				So(Get(), ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerJSONOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat(FormatJSON), WithWriter(&buf), WithSource(false)), ShouldBeNil)

		Convey("When a named logger writes a record", func() {
			Named("service").Info(context.Background(), "evaluation applied", String("party", "p-1"), Int("score", 42))

			Convey("Then the record carries the component and fields", func() {
				var rec map[string]any
				So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "evaluation applied")
				So(rec["component"], ShouldEqual, "service")
				So(rec["party"], ShouldEqual, "p-1")
				So(rec["score"], ShouldEqual, float64(42))
			})
		})

		Convey("When With attaches persistent fields", func() {
			Get().With(String("shard", "3")).Warn(context.Background(), "queue full")

			Convey("Then they appear on the record", func() {
				So(buf.String(), ShouldContainSubstring, `"shard":"3"`)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given a text logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithWriter(&buf), WithSource(false)), ShouldBeNil)
		Reset(func() { _ = SetLevelString("info") })

		Convey("When the level is raised to warn", func() {
			So(SetLevelString("WARN"), ShouldBeNil)
			Get().Info(context.Background(), "hidden")
			Get().Warn(context.Background(), "visible")

			Convey("Then info records are dropped", func() {
				So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
				So(buf.String(), ShouldContainSubstring, "visible")
			})
		})

		Convey("When an unknown level is given", func() {
			err := SetLevelString("verbose")

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown log level")
			})
		})
	})
}
