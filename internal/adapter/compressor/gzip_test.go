package compressor

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const sampleDump = `--
-- PostgreSQL database dump
--
CREATE TABLE products (id serial PRIMARY KEY, name text);
INSERT INTO products (name) VALUES ('widget');
`

func TestGzipCompressor(t *testing.T) {
	Convey("Given a GzipCompressor", t, func() {
		compressor := NewGzip()
		dir := t.TempDir()
		dumpPath := filepath.Join(dir, "bk_250601_020000_pg16.2_pro_sch.sql")
		So(os.WriteFile(dumpPath, []byte(strings.Repeat(sampleDump, 50)), 0644), ShouldBeNil)

		So(compressor.Extension(), ShouldEqual, ".gz")

		Convey("Compress method", func() {
			Convey("When compressing a dump", func() {
				outputPath := dumpPath + compressor.Extension()
				err := compressor.Compress(dumpPath, outputPath)

				Convey("It should write a smaller valid gzip stream", func() {
					So(err, ShouldBeNil)

					in, _ := os.Stat(dumpPath)
					out, _ := os.Stat(outputPath)
					So(out.Size(), ShouldBeLessThan, in.Size())

					f, err := os.Open(outputPath)
					So(err, ShouldBeNil)
					defer f.Close()
					zr, err := gzip.NewReader(f)
					So(err, ShouldBeNil)
					So(zr.Name, ShouldEqual, filepath.Base(dumpPath))
				})
			})

			Convey("When the source file does not exist", func() {
				err := compressor.Compress(filepath.Join(dir, "missing.sql"), filepath.Join(dir, "out.gz"))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to open source file")
			})

			Convey("When the destination path is invalid", func() {
				err := compressor.Compress(dumpPath, filepath.Join(dir, "no", "such", "dir", "out.gz"))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to create dest file")
			})
		})
	})

	Convey("NewGzipLevel should reject out of range levels", t, func() {
		_, err := NewGzipLevel(42)
		So(err, ShouldNotBeNil)

		c, err := NewGzipLevel(gzip.BestSpeed)
		So(err, ShouldBeNil)
		So(c.level, ShouldEqual, gzip.BestSpeed)
	})
}
