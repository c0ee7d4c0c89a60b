package mailbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/dictation/internal/shared"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func backends(t *testing.T) map[string]func(t *testing.T) Mailbox {
	return map[string]func(t *testing.T) Mailbox{
		"dir": func(t *testing.T) Mailbox {
			d := NewDir(filepath.Join(t.TempDir(), "requests"))
			if err := d.Ensure(); err != nil {
				t.Fatalf("Ensure() error = %v", err)
			}
			return d
		},
		"memory": func(t *testing.T) Mailbox {
			return NewMemory()
		},
		"redis": func(t *testing.T) Mailbox {
			client, _ := newTestRedis(t)
			return NewRedis(client, "test:requests")
		},
	}
}

func TestMailbox_Lifecycle(t *testing.T) {
	for name, build := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := build(t)

			if err := m.Probe(ctx); err != nil {
				t.Fatalf("Probe() error = %v", err)
			}

			if err := m.Publish(ctx, "a", []byte(`{"x":1}`)); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			if err := m.Publish(ctx, "b", []byte(`{"x":2}`)); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}

			ids, err := m.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			sort.Strings(ids)
			if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
				t.Fatalf("List() = %v, want [a b]", ids)
			}

			data, err := m.Read(ctx, "a")
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if string(data) != `{"x":1}` {
				t.Errorf("Read() = %s", data)
			}

			removed, err := m.Delete(ctx, "a")
			if err != nil || !removed {
				t.Fatalf("Delete() = %v, %v; want true, nil", removed, err)
			}

			removed, err = m.Delete(ctx, "a")
			if err != nil {
				t.Fatalf("second Delete() must not fail, got %v", err)
			}
			if removed {
				t.Error("second Delete() must not report a claim")
			}

			if _, err := m.Read(ctx, "a"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("Read() after delete = %v, want ErrNotFound", err)
			}

			if err := m.Purge(ctx); err != nil {
				t.Fatalf("Purge() error = %v", err)
			}
			if _, err := m.Read(ctx, "b"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("Read() after purge = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMailbox_ConcurrentClaim(t *testing.T) {
	for name, build := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := build(t)

			if err := m.Publish(ctx, "only", []byte("{}")); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}

			var wg sync.WaitGroup
			var mu sync.Mutex
			claims := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := m.Delete(ctx, "only")
					if err != nil {
						t.Errorf("Delete() error = %v", err)
						return
					}
					if ok {
						mu.Lock()
						claims++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if claims != 1 {
				t.Errorf("expected exactly one claim, got %d", claims)
			}
		})
	}
}

func TestDir_MissingDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDir(filepath.Join(t.TempDir(), "absent"))

	if err := d.Probe(ctx); !errors.Is(err, shared.ErrTransport) {
		t.Errorf("Probe() = %v, want transport error", err)
	}
	if err := d.Publish(ctx, "a", []byte("{}")); !errors.Is(err, shared.ErrTransport) {
		t.Errorf("Publish() = %v, want transport error", err)
	}
	if _, err := d.List(ctx); !errors.Is(err, shared.ErrTransport) {
		t.Errorf("List() = %v, want transport error", err)
	}
	if removed, err := d.Delete(ctx, "a"); err != nil || removed {
		t.Errorf("Delete() on missing dir = %v, %v", removed, err)
	}
}

func TestDir_ListSkipsForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := NewDir(dir)

	files := map[string]string{
		"good.json":       "{}",
		".inflight.tmp":   "{",
		"probe-1.tmp":     "",
		"notes.txt":       "hi",
		".hidden.json":    "{}",
		"second-one.json": "{}",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	ids, err := d.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "good" || ids[1] != "second-one" {
		t.Errorf("List() = %v", ids)
	}
}

func TestDir_PublishLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := NewDir(dir)

	if err := d.Publish(ctx, "req", []byte(`{"request_id":"req"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "req.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected directory contents %v", names)
	}
}

func TestDir_PurgeRemovesDirectory(t *testing.T) {
	ctx := context.Background()
	pair := NewDirPair(filepath.Join(t.TempDir(), "req"), filepath.Join(t.TempDir(), "resp"))
	if err := pair.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if err := pair.Probe(ctx); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if err := pair.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if err := pair.Probe(ctx); err == nil {
		t.Error("Probe() after purge should fail")
	}
	if err := pair.Purge(ctx); err != nil {
		t.Errorf("second Purge() should be a no-op, got %v", err)
	}
}

func TestMemory_PurgeBlocksPublishUntilEnsure(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Purge(ctx)

	if err := m.Publish(ctx, "a", nil); !errors.Is(err, shared.ErrTransport) {
		t.Errorf("Publish() after purge = %v", err)
	}
	if err := m.Ensure(); err != nil {
		t.Fatal(err)
	}
	if err := m.Publish(ctx, "a", nil); err != nil {
		t.Errorf("Publish() after Ensure = %v", err)
	}
}

func TestRedis_ProbeFailsWhenServerDown(t *testing.T) {
	client, mr := newTestRedis(t)
	pair := NewRedisPair(client, "")
	mr.Close()

	if err := pair.Probe(context.Background()); !errors.Is(err, shared.ErrTransport) {
		t.Errorf("Probe() = %v, want transport error", err)
	}
}
