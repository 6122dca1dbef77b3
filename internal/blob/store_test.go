package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := store.Put(ctx, "intake/a.json", strings.NewReader(`{"a":1}`), PutOptions{ContentType: "application/json"})
			if err != nil {
				t.Fatalf("first Put: %v", err)
			}
			if info.Size != int64(len(`{"a":1}`)) {
				t.Fatalf("unexpected size %d", info.Size)
			}
			_, err = store.Put(ctx, "intake/a.json", strings.NewReader("other"), PutOptions{})
			if !errors.Is(err, ErrExists) {
				t.Fatalf("expected create-only conflict, got %v", err)
			}
			// losing write must not clobber the original
			_, rc, err := store.Get(ctx, "intake/a.json")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			if !bytes.Equal(data, []byte(`{"a":1}`)) {
				t.Fatalf("original content clobbered: %q", data)
			}
		})
	}
}

func TestHeadAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(ctx, "intake/b.json", strings.NewReader("body"), PutOptions{
				ContentType: "application/json",
				Metadata:    map[string]string{"source": "test"},
			}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			info, err := store.Head(ctx, "intake/b.json")
			if err != nil {
				t.Fatalf("Head: %v", err)
			}
			if info.ContentType != "application/json" || info.Metadata["source"] != "test" {
				t.Fatalf("metadata mismatch: %+v", info)
			}

			ok, err := store.Delete(ctx, "intake/b.json")
			if err != nil || !ok {
				t.Fatalf("Delete: ok=%v err=%v", ok, err)
			}
			ok, err = store.Delete(ctx, "intake/b.json")
			if err != nil || ok {
				t.Fatalf("second Delete must be (false,nil), got ok=%v err=%v", ok, err)
			}
			if _, err := store.Head(ctx, "intake/b.json"); err == nil {
				t.Fatalf("expected Head to fail after delete")
			}
		})
	}
}

func TestListFiltersByPrefixSorted(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"intake/2.json", "archived/1.json", "intake/1.json"} {
				if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
					t.Fatalf("Put %s: %v", key, err)
				}
			}
			infos, err := store.List(ctx, "intake/")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("expected 2 intake blobs, got %d", len(infos))
			}
			if infos[0].Key != "intake/1.json" || infos[1].Key != "intake/2.json" {
				t.Fatalf("expected key-ascending order, got %v", []string{infos[0].Key, infos[1].Key})
			}
			all, err := store.List(ctx, "")
			if err != nil || len(all) != 3 {
				t.Fatalf("expected 3 blobs total, got %d err=%v", len(all), err)
			}
		})
	}
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../escape", "/abs/path", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestFilesystemETagIsContentHash(t *testing.T) {
	ctx := context.Background()
	s1, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	s2, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	a, err := s1.Put(ctx, "k", strings.NewReader("same content"), PutOptions{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := s2.Put(ctx, "k", strings.NewReader("same content"), PutOptions{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if a.ETag == "" || a.ETag != b.ETag {
		t.Fatalf("expected deterministic content etag, got %q vs %q", a.ETag, b.ETag)
	}
}

func TestOpenFactorySelectsDriver(t *testing.T) {
	t.Setenv("CLUBATLAS_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("CLUBATLAS_BLOB_DRIVER", "bogus")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	t.Setenv("CLUBATLAS_BLOB_DRIVER", "s3")
	t.Setenv("CLUBATLAS_BLOB_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
