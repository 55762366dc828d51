package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"aquacast/internal/config"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			info, err := store.Put(ctx, "runs/2026-08-20.jsonl.gz", strings.NewReader("payload"), "application/gzip")
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Key != "runs/2026-08-20.jsonl.gz" || info.Size != int64(len("payload")) {
				t.Fatalf("put info: %+v", info)
			}

			// Archive objects are create-only.
			if _, err := store.Put(ctx, "runs/2026-08-20.jsonl.gz", strings.NewReader("x"), ""); err == nil {
				t.Fatalf("expected duplicate key error")
			}

			_, rc, err := store.Get(ctx, "runs/2026-08-20.jsonl.gz")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil || string(body) != "payload" {
				t.Fatalf("content: %q %v", body, err)
			}

			if _, err := store.Put(ctx, "other/x.bin", strings.NewReader("y"), ""); err != nil {
				t.Fatalf("put other: %v", err)
			}
			infos, err := store.List(ctx, "runs/")
			if err != nil || len(infos) != 1 {
				t.Fatalf("list prefix: %+v %v", infos, err)
			}

			existed, err := store.Delete(ctx, "runs/2026-08-20.jsonl.gz")
			if err != nil || !existed {
				t.Fatalf("delete: existed=%v err=%v", existed, err)
			}
			existed, err = store.Delete(ctx, "runs/2026-08-20.jsonl.gz")
			if err != nil || existed {
				t.Fatalf("second delete should report missing: existed=%v err=%v", existed, err)
			}
			if _, _, err := store.Get(ctx, "runs/2026-08-20.jsonl.gz"); err != ErrNotFound {
				t.Fatalf("get deleted: want ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSanitizeKey(t *testing.T) {
	bad := []string{"", "  ", "/abs/path", "../escape", "a/../../b"}
	for _, key := range bad {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
	clean, err := sanitizeKey("runs/./2026-08-20.jsonl.gz")
	if err != nil || clean != "runs/2026-08-20.jsonl.gz" {
		t.Fatalf("sanitize: %q %v", clean, err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.Config{BlobDriver: "memory"})
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("open memory: %v %v", store, err)
	}
	store, err = Open(ctx, config.Config{BlobDriver: "fs", BlobFSRoot: t.TempDir()})
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("open fs: %v %v", store, err)
	}
	if _, err := Open(ctx, config.Config{BlobDriver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
