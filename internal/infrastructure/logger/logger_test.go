package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				logger, err := New("info", "")

				Convey("It should create a logger successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(func() { logger.Infof("backup %s started", "bk_1") }, ShouldNotPanic)
				})
			})

			Convey("When creating a logger with a log file", func() {
				tempDir := t.TempDir()
				logFile := filepath.Join(tempDir, "logs", "dbbackup.log")

				logger, err := New("debug", logFile)

				Convey("It should write JSON entries to the file", func() {
					So(err, ShouldBeNil)
					logger.Named("orchestrator").Debugw("progress", "backup_id", "abc", "progress", 40)
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					line := string(content)
					So(line, ShouldContainSubstring, `"logger":"orchestrator"`)
					So(line, ShouldContainSubstring, `"backup_id":"abc"`)
					So(strings.Count(line, "\n"), ShouldEqual, 1)
				})
			})

			Convey("When creating a logger with an invalid log level", func() {
				tempDir := t.TempDir()
				logFile := filepath.Join(tempDir, "app.log")
				logger, err := New("invalid", logFile)

				Convey("It should default to Info level", func() {
					So(err, ShouldBeNil)
					logger.Debugf("hidden")
					logger.Infof("shown")
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldNotContainSubstring, "hidden")
					So(string(content), ShouldContainSubstring, "shown")
				})
			})

			Convey("When creating a logger with an invalid log file path", func() {
				logger, err := New("info", "/proc/invalid/path/test.log")

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})

		Convey("Nop logger", func() {
			logger := Nop()
			So(func() {
				logger.Errorf("ignored %d", 1)
				logger.Close()
			}, ShouldNotPanic)
		})
	})
}
