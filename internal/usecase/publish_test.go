package usecase

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbbackup/internal/adapter/compressor"
)

// memStorage is a remote target held in memory.
type memStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	uploadErr error
	oldErr    error
	old       []string
	notes     []string
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, localPath, remoteName string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[remoteName] = data
	return nil
}

func (m *memStorage) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok, nil
}

func (m *memStorage) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memStorage) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

func (m *memStorage) GetOldFiles(context.Context, time.Time) ([]string, error) {
	if m.oldErr != nil {
		return nil, m.oldErr
	}
	return m.old, nil
}

func (m *memStorage) has(name string) bool {
	ok, _ := m.Exists(context.Background(), name)
	return ok
}

type notifyingStorage struct {
	*memStorage
}

func (n notifyingStorage) SendNotification(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, message)
	return nil
}

// sendOnlyStorage accepts uploads but cannot look back at what it sent.
type sendOnlyStorage struct {
	*memStorage
	lookups int
}

func (s *sendOnlyStorage) Exists(context.Context, string) (bool, error) {
	s.lookups++
	return false, errors.ErrUnsupported
}

func (s *sendOnlyStorage) List(context.Context) ([]string, error) {
	s.lookups++
	return nil, errors.ErrUnsupported
}

func (s *sendOnlyStorage) Delete(context.Context, string) error {
	s.lookups++
	return errors.ErrUnsupported
}

func (s *sendOnlyStorage) GetOldFiles(context.Context, time.Time) ([]string, error) {
	s.lookups++
	return nil, errors.ErrUnsupported
}

func TestPublisher(t *testing.T) {
	Convey("Given a dump and two upload targets", t, func() {
		dir := t.TempDir()
		dump := filepath.Join(dir, "bk_250603_140001_pg16.2_loc.sql")
		So(os.WriteFile(dump, []byte("CREATE TABLE t ();\n"), 0644), ShouldBeNil)

		s3 := newMemStorage()
		tg := notifyingStorage{newMemStorage()}
		targets := []UploadTarget{{Name: "s3", Storage: s3}, {Name: "telegram", Storage: tg}}
		ctx := context.Background()

		Convey("Publish without compression should upload the dump as is", func() {
			p := NewPublisher(targets, compressor.NewGzip(), false, testLogger{})
			So(p.Publish(ctx, dump, filepath.Base(dump)), ShouldBeNil)
			So(s3.has(filepath.Base(dump)), ShouldBeTrue)
			So(tg.has(filepath.Base(dump)), ShouldBeTrue)
		})

		Convey("Publish with compression should upload a gzip and clean up after itself", func() {
			p := NewPublisher(targets, compressor.NewGzip(), true, testLogger{})
			name := filepath.Base(dump) + ".gz"
			So(p.Publish(ctx, dump, filepath.Base(dump)), ShouldBeNil)
			So(s3.has(name), ShouldBeTrue)

			tmp := filepath.Join(dir, "roundtrip.gz")
			So(os.WriteFile(tmp, s3.files[name], 0644), ShouldBeNil)
			in, _ := os.Open(tmp)
			defer in.Close()
			zr, err := gzip.NewReader(in)
			So(err, ShouldBeNil)
			plain, _ := io.ReadAll(zr)
			So(string(plain), ShouldEqual, "CREATE TABLE t ();\n")

			leftovers, _ := filepath.Glob(filepath.Join(os.TempDir(), "dbbackup-publish-*", name))
			So(leftovers, ShouldBeEmpty)
		})

		Convey("One failing target should not stop the others", func() {
			s3.uploadErr = errors.New("access denied")
			p := NewPublisher(targets, nil, true, testLogger{})
			err := p.Publish(ctx, dump, filepath.Base(dump))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "s3: access denied")
			So(tg.has(filepath.Base(dump)), ShouldBeTrue)
		})

		Convey("Notify should reach only targets that can notify", func() {
			p := NewPublisher(targets, nil, false, testLogger{})
			p.Notify("backup failed")
			So(tg.notes, ShouldResemble, []string{"backup failed"})
			So(s3.notes, ShouldBeEmpty)
		})

		Convey("Unpublish should remove both plain and compressed copies", func() {
			p := NewPublisher(targets, compressor.NewGzip(), true, testLogger{})
			name := filepath.Base(dump)
			s3.files[name] = []byte("x")
			s3.files[name+".gz"] = []byte("x")

			So(p.Unpublish(ctx, name), ShouldBeNil)
			So(s3.has(name), ShouldBeFalse)
			So(s3.has(name+".gz"), ShouldBeFalse)
		})

		Convey("Unpublish should skip targets that cannot delete", func() {
			chat := &sendOnlyStorage{memStorage: newMemStorage()}
			p := NewPublisher([]UploadTarget{{Name: "telegram", Storage: chat}, {Name: "s3", Storage: s3}}, nil, false, testLogger{})
			name := filepath.Base(dump)
			s3.files[name] = []byte("x")

			So(p.Unpublish(ctx, name), ShouldBeNil)
			So(s3.has(name), ShouldBeFalse)
			So(chat.lookups, ShouldEqual, 1)
		})

		Convey("A nil publisher should be a no-op", func() {
			var p *Publisher
			So(p.Publish(ctx, dump, "x"), ShouldBeNil)
			So(p.Unpublish(ctx, "x"), ShouldBeNil)
			p.Notify("ignored")
		})
	})
}
