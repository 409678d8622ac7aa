package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func openForTest(t *testing.T, driver string) Store {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{Driver: driver, Path: filepath.Join(dir, "state", "receivers."+driver)}
	st, err := Open(cfg, nopLog())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDriversRoundTripAndReplace(t *testing.T) {
	for _, driver := range []string{"memory", "file", "bolt", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openForTest(t, driver)

			got, err := st.LoadReceivers(ctx)
			if err != nil {
				t.Fatalf("load empty: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("never-written set = %v, want empty", got)
			}

			if err := st.SaveReceivers(ctx, []string{"b.Receiver", "a.Receiver", " ", "b.Receiver"}); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err = st.LoadReceivers(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if want := []string{"a.Receiver", "b.Receiver"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("loaded %v, want %v", got, want)
			}

			// Full replace, not merge.
			if err := st.SaveReceivers(ctx, []string{"c.Receiver"}); err != nil {
				t.Fatalf("save replace: %v", err)
			}
			got, _ = st.LoadReceivers(ctx)
			if want := []string{"c.Receiver"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("after replace %v, want %v", got, want)
			}

			if err := st.SaveReceivers(ctx, nil); err != nil {
				t.Fatalf("save empty: %v", err)
			}
			got, _ = st.LoadReceivers(ctx)
			if len(got) != 0 {
				t.Fatalf("after clearing %v, want empty", got)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.json")
	st, err := Open(Config{Driver: "file", Path: path}, nopLog())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.SaveReceivers(ctx, []string{"audit"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = st.Close()

	st2, err := Open(Config{Driver: "file", Path: path}, nopLog())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := st2.LoadReceivers(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"audit"}) {
		t.Fatalf("reloaded %v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary snapshot left behind: %v", err)
	}
}

func TestFileStoreKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.json")
	a, err := Open(Config{Driver: "file", Path: path, Key: "a"}, nopLog())
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := Open(Config{Driver: "file", Path: path, Key: "b"}, nopLog())
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	_ = a.SaveReceivers(ctx, []string{"x"})
	_ = b.SaveReceivers(ctx, []string{"y"})

	got, _ := a.LoadReceivers(ctx)
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("key a = %v, want [x]", got)
	}
}

func TestFileStoreRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(Config{Driver: "file", Path: path}, nopLog()); err == nil {
		t.Fatalf("expected corrupt snapshot to fail open")
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, nopLog())
	if err != nil || st != nil {
		t.Fatalf("none driver = (%v, %v), want (nil, nil)", st, err)
	}
	if _, err := Open(Config{Driver: "cassette"}, nopLog()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "redis"}, nopLog()); err == nil {
		t.Fatalf("expected missing redis addr error")
	}
	if _, err := Open(Config{Driver: "postgres"}, nopLog()); err == nil {
		t.Fatalf("expected missing postgres dsn error")
	}
}

func TestDeferredUnavailableUntilAttached(t *testing.T) {
	ctx := context.Background()
	d := NewDeferred()
	if _, err := d.LoadReceivers(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("load before attach err = %v, want ErrUnavailable", err)
	}
	if err := d.SaveReceivers(ctx, []string{"x"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("save before attach err = %v, want ErrUnavailable", err)
	}

	mem := NewMemory("x")
	d.Attach(mem)
	if !d.Attached() {
		t.Fatalf("expected attached")
	}
	got, err := d.LoadReceivers(ctx)
	if err != nil || !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("load after attach = (%v, %v)", got, err)
	}
	if err := d.SaveReceivers(ctx, []string{"y"}); err != nil {
		t.Fatalf("save after attach: %v", err)
	}
	if mem.Writes() != 1 {
		t.Fatalf("backend writes = %d, want 1", mem.Writes())
	}
}

func TestClassifyRedisErr(t *testing.T) {
	if classifyRedisErr(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	plain := errors.New("WRONGTYPE")
	if errors.Is(classifyRedisErr(plain), ErrUnavailable) {
		t.Fatalf("server error must not be treated as transient")
	}
}
