package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbbackup/internal/domain"
)

func TestRunner(t *testing.T) {
	Convey("Given a Runner", t, func() {
		runner := NewRunner()
		ctx := context.Background()
		dir := t.TempDir()

		Convey("When the tool writes to stdout", func() {
			out := filepath.Join(dir, "dump.sql")
			res, err := runner.Run(ctx, Spec{
				Path:       "sh",
				Args:       []string{"-c", `printf 'CREATE TABLE t (id int);\n'; printf "pw=$PGPASSWORD" >&2`},
				Env:        []string{"PGPASSWORD=s3cret"},
				StdoutFile: out,
			})

			Convey("It should redirect stdout to the file and capture stderr", func() {
				So(err, ShouldBeNil)
				So(res.ExitCode, ShouldEqual, 0)
				So(res.Stderr, ShouldEqual, "pw=s3cret")

				content, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				So(string(content), ShouldEqual, "CREATE TABLE t (id int);\n")
			})
		})

		Convey("When the output file already exists", func() {
			out := filepath.Join(dir, "taken.sql")
			So(os.WriteFile(out, []byte("keep me"), 0644), ShouldBeNil)

			_, err := runner.Start(ctx, Spec{Path: "sh", Args: []string{"-c", "true"}, StdoutFile: out})

			Convey("It should refuse to overwrite it", func() {
				So(errors.Is(err, domain.ErrFileSystem), ShouldBeTrue)
				content, _ := os.ReadFile(out)
				So(string(content), ShouldEqual, "keep me")
			})
		})

		Convey("When the tool exits non-zero", func() {
			res, err := runner.Run(ctx, Spec{Path: "sh", Args: []string{"-c", "echo 'FATAL: role does not exist' >&2; exit 3"}})

			Convey("It should report a tool execution failure with stderr", func() {
				So(errors.Is(err, domain.ErrToolExecutionFailed), ShouldBeTrue)
				So(res.ExitCode, ShouldEqual, 3)
				So(err.Error(), ShouldContainSubstring, "FATAL: role does not exist")
			})
		})

		Convey("When the executable does not exist", func() {
			out := filepath.Join(dir, "never.sql")
			_, err := runner.Start(ctx, Spec{Path: filepath.Join(dir, "pg_dump_missing"), StdoutFile: out})

			Convey("It should report tool not found and leave no file behind", func() {
				So(errors.Is(err, domain.ErrToolNotFound), ShouldBeTrue)
				_, statErr := os.Stat(out)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When the executable is not in PATH", func() {
			_, err := runner.Start(ctx, Spec{Path: "definitely-not-a-real-pg-tool"})
			So(errors.Is(err, domain.ErrToolNotFound), ShouldBeTrue)
		})

		Convey("When the executable is not runnable", func() {
			tool := filepath.Join(dir, "pg_dump")
			So(os.WriteFile(tool, []byte("#!/bin/sh\n"), 0644), ShouldBeNil)

			_, err := runner.Start(ctx, Spec{Path: tool})
			So(errors.Is(err, domain.ErrToolNotFound), ShouldBeTrue)
		})

		Convey("When the input file is missing", func() {
			_, err := runner.Start(ctx, Spec{Path: "sh", StdinFile: filepath.Join(dir, "nope.sql")})
			So(errors.Is(err, domain.ErrFileSystem), ShouldBeTrue)
		})

		Convey("When reading from an input file", func() {
			in := filepath.Join(dir, "restore.sql")
			So(os.WriteFile(in, []byte("SELECT 1;"), 0644), ShouldBeNil)

			res, err := runner.Run(ctx, Spec{Path: "sh", Args: []string{"-c", "cat >&2"}, StdinFile: in})
			So(err, ShouldBeNil)
			So(res.Stderr, ShouldEqual, "SELECT 1;")
		})

		Convey("When the deadline passes", func() {
			tctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()

			h, err := runner.Start(tctx, Spec{Path: "sh", Args: []string{"-c", "sleep 5"}})
			So(err, ShouldBeNil)

			Convey("It should kill the process and say it timed out", func() {
				select {
				case <-h.Done():
				case <-time.After(10 * time.Second):
					So("process still running", ShouldBeEmpty)
				}
				_, err := h.Wait()
				So(errors.Is(err, domain.ErrToolExecutionFailed), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "timed out")
			})
		})
	})
}
