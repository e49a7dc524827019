package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerateFilename(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	tests := []struct {
		in   string
		want string
	}{
		{"flan.jpg", "1700000000123-flan.jpg"},
		{"tres leches  cake.png", "1700000000123-tres-leches-cake.png"},
		{"a \t b.jpeg", "1700000000123-a-b.jpeg"},
		{"photos/summer/flan.jpg", "1700000000123-flan.jpg"},
		{`C:\Users\me\my flan.gif`, "1700000000123-my-flan.gif"},
		{"noext", "1700000000123-noext"},
		{".hidden", "1700000000123-.hidden"},
		{"archive.tar.gz", "1700000000123-archive.tar.gz"},
		{"", "1700000000123-"},
	}

	for _, tt := range tests {
		if got := GenerateFilename(tt.in, now); got != tt.want {
			t.Errorf("GenerateFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in           string
		wantEndpoint string
		wantSecure   bool
		wantErr      bool
	}{
		{"minio:9000", "minio:9000", false, false},
		{"http://minio:9000", "minio:9000", false, false},
		{"https://minio:9000", "minio:9000", true, false},
		{"http://minio:9000/", "minio:9000", false, false},
		{"http://minio:9000/foo", "", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		ep, secure, err := normaliseEndpoint(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("expected error for input %q", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tt.in, err)
		}
		if ep != tt.wantEndpoint || secure != tt.wantSecure {
			t.Fatalf("normaliseEndpoint(%q) = (%q,%v), want (%q,%v)", tt.in, ep, secure, tt.wantEndpoint, tt.wantSecure)
		}
	}
}

func TestLocalStore(t *testing.T) {
	Convey("Given a local store in a fresh directory", t, func() {
		dir := filepath.Join(t.TempDir(), "uploads")
		store, err := NewLocalStore(dir)
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Then the directory exists", func() {
			info, err := os.Stat(dir)
			So(err, ShouldBeNil)
			So(info.IsDir(), ShouldBeTrue)
		})

		Convey("When an object is put", func() {
			err := store.Put(ctx, "1-flan.jpg", strings.NewReader("jpeg bytes"), 10, "image/jpeg")
			So(err, ShouldBeNil)

			Convey("Then it can be opened again", func() {
				rc, err := store.Open(ctx, "1-flan.jpg")
				So(err, ShouldBeNil)
				defer rc.Close()
				data, _ := io.ReadAll(rc)
				So(string(data), ShouldEqual, "jpeg bytes")
			})

			Convey("Then it is listed without temp files", func() {
				objs, err := store.List(ctx, "")
				So(err, ShouldBeNil)
				So(len(objs), ShouldEqual, 1)
				So(objs[0].Key, ShouldEqual, "1-flan.jpg")
				So(objs[0].Size, ShouldEqual, int64(10))
			})

			Convey("Then a prefix that does not match lists nothing", func() {
				objs, err := store.List(ctx, "2-")
				So(err, ShouldBeNil)
				So(objs, ShouldBeEmpty)
			})

			Convey("And deleted", func() {
				So(store.Delete(ctx, "1-flan.jpg"), ShouldBeNil)

				Convey("Then opening reports not found", func() {
					_, err := store.Open(ctx, "1-flan.jpg")
					So(err, ShouldEqual, ErrObjectNotFound)
				})

				Convey("Then deleting again reports not found", func() {
					So(store.Delete(ctx, "1-flan.jpg"), ShouldEqual, ErrObjectNotFound)
				})
			})
		})

		Convey("When a crashed upload left temp files behind", func() {
			stale := filepath.Join(dir, ".upload-111")
			recent := filepath.Join(dir, ".upload-222")
			So(os.WriteFile(stale, []byte("partial"), 0o644), ShouldBeNil)
			So(os.WriteFile(recent, []byte("partial"), 0o644), ShouldBeNil)
			past := time.Now().Add(-2 * staleTempAge)
			So(os.Chtimes(stale, past, past), ShouldBeNil)

			_, err := NewLocalStore(dir)
			So(err, ShouldBeNil)

			Convey("Then the stale one is removed on start and a running one is kept", func() {
				_, staleErr := os.Stat(stale)
				So(os.IsNotExist(staleErr), ShouldBeTrue)
				_, recentErr := os.Stat(recent)
				So(recentErr, ShouldBeNil)
			})
		})

		Convey("When a key tries to escape the directory", func() {
			_, openErr := store.Open(ctx, "../secret")
			putErr := store.Put(ctx, "../evil", strings.NewReader("x"), 1, "")

			Convey("Then it is rejected", func() {
				So(openErr, ShouldEqual, ErrObjectNotFound)
				So(putErr, ShouldNotBeNil)
			})
		})
	})
}

// bucketStore bildet einen flachen Bucket nach, in dem Schlüssel Slashes enthalten dürfen.
type bucketStore struct {
	objects map[string]string
}

func (b *bucketStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = string(data)
	return nil
}

func (b *bucketStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	v, ok := b.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func (b *bucketStore) Delete(_ context.Context, key string) error {
	if _, ok := b.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *bucketStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func TestWithKeyPrefix(t *testing.T) {
	Convey("Given a bucket shared with backups", t, func() {
		ctx := context.Background()
		bucket := &bucketStore{objects: map[string]string{
			"backup-2026-10-01T00-00-00Z.sql.gz": "dump",
			"desserts/old/nested.jpg":            "nested",
		}}
		store := WithKeyPrefix(bucket, "/desserts")

		Convey("When an upload is put", func() {
			So(store.Put(ctx, "1-flan.jpg", strings.NewReader("jpeg"), 4, "image/jpeg"), ShouldBeNil)

			Convey("Then it lands under the prefix", func() {
				So(bucket.objects["desserts/1-flan.jpg"], ShouldEqual, "jpeg")
			})

			Convey("Then it opens by its plain name", func() {
				rc, err := store.Open(ctx, "1-flan.jpg")
				So(err, ShouldBeNil)
				data, _ := io.ReadAll(rc)
				rc.Close()
				So(string(data), ShouldEqual, "jpeg")
			})

			Convey("Then listing shows only plain names below the prefix", func() {
				objs, err := store.List(ctx, "")
				So(err, ShouldBeNil)
				So(len(objs), ShouldEqual, 1)
				So(objs[0].Key, ShouldEqual, "1-flan.jpg")
			})

			Convey("Then deleting removes only the upload", func() {
				So(store.Delete(ctx, "1-flan.jpg"), ShouldBeNil)
				So(bucket.objects, ShouldContainKey, "backup-2026-10-01T00-00-00Z.sql.gz")
				So(bucket.objects, ShouldNotContainKey, "desserts/1-flan.jpg")
			})
		})

		Convey("When a key tries to leave the prefix", func() {
			So(store.Delete(ctx, "../backup-2026-10-01T00-00-00Z.sql.gz"), ShouldEqual, ErrObjectNotFound)
			So(bucket.objects, ShouldContainKey, "backup-2026-10-01T00-00-00Z.sql.gz")
		})
	})

	Convey("An empty prefix keeps the store as is", t, func() {
		bucket := &bucketStore{objects: map[string]string{}}
		So(WithKeyPrefix(bucket, " / "), ShouldEqual, bucket)
		So(NormalizePrefix("a/b/"), ShouldEqual, "a/b/")
	})
}
