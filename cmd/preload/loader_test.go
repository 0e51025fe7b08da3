package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/engine/ingest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type call struct {
	op   string
	file string
}

// fakeIndex records DeleteFile and Run calls in order. Run reads the
// staged copy and removes it like the real pipeline.
type fakeIndex struct {
	mu       sync.Mutex
	calls    []call
	contents map[string]string
	tasks    []domain.Task
	fail     map[string]error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{contents: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeIndex) DeleteFile(_ context.Context, tenant, file string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"delete", file})
	return nil
}

func (f *fakeIndex) Run(_ context.Context, task domain.Task) (ingest.Outcome, error) {
	data, err := os.ReadFile(task.FilePath)
	os.Remove(task.FilePath)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"run", task.FileName})
	f.tasks = append(f.tasks, task)
	if err != nil {
		return ingest.Outcome{}, err
	}
	f.contents[task.FileName] = string(data)
	if err := f.fail[task.FileName]; err != nil {
		return ingest.Outcome{Status: domain.StateFailed}, err
	}
	return ingest.Outcome{Status: domain.StateDone, Chunks: 1, Indexed: 1}, nil
}

func (f *fakeIndex) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoadDir(t *testing.T) {
	src, staging := t.TempDir(), t.TempDir()
	write(t, src, "handbook.md", "# Handbook")
	write(t, src, "policy.txt", "Remote work is allowed up to 3 days/week.")
	write(t, src, "logo.png", "\x89PNG")
	write(t, src, ".draft.txt", "hidden")
	os.Mkdir(filepath.Join(src, "archive.txt"), 0o755)

	fake := newFakeIndex()
	l := NewLoader(fake, fake, domain.DefaultPreloadedTenant, staging, quiet)
	n, err := l.LoadDir(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 files, got %d", n)
	}

	var names []string
	for _, task := range fake.tasks {
		if task.TenantID != domain.DefaultPreloadedTenant {
			t.Fatalf("wrong tenant %q", task.TenantID)
		}
		names = append(names, task.FileName)
	}
	sort.Strings(names)
	if names[0] != "handbook.md" || names[1] != "policy.txt" {
		t.Fatalf("got %v", names)
	}
	if fake.contents["policy.txt"] != "Remote work is allowed up to 3 days/week." {
		t.Fatalf("staged copy differs: %q", fake.contents["policy.txt"])
	}

	// Originals stay; staged copies are gone.
	if _, err := os.Stat(filepath.Join(src, "policy.txt")); err != nil {
		t.Fatal("source file removed")
	}
	if left, _ := os.ReadDir(staging); len(left) != 0 {
		t.Fatalf("staging not empty: %d files", len(left))
	}
}

func TestLoadFileDeletesBeforeRun(t *testing.T) {
	src := t.TempDir()
	p := write(t, src, "faq.txt", "q and a")
	fake := newFakeIndex()
	l := NewLoader(fake, fake, "shared", t.TempDir(), quiet)
	if err := l.LoadFile(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	calls := fake.snapshot()
	if len(calls) != 2 || calls[0] != (call{"delete", "faq.txt"}) || calls[1] != (call{"run", "faq.txt"}) {
		t.Fatalf("calls %v", calls)
	}
}

func TestLoadDirContinuesPastFailures(t *testing.T) {
	src := t.TempDir()
	write(t, src, "a.txt", "a")
	write(t, src, "b.txt", "b")
	fake := newFakeIndex()
	fake.fail["a.txt"] = domain.ErrParse
	l := NewLoader(fake, fake, "shared", t.TempDir(), quiet)

	n, err := l.LoadDir(context.Background(), src)
	if n != 1 {
		t.Fatalf("expected 1 loaded, got %d", n)
	}
	if !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadFileUnsupported(t *testing.T) {
	fake := newFakeIndex()
	l := NewLoader(fake, fake, "shared", t.TempDir(), quiet)
	err := l.LoadFile(context.Background(), write(t, t.TempDir(), "x.png", "x"))
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if len(fake.snapshot()) != 0 {
		t.Fatal("unsupported file touched the index")
	}
}

func TestWatch(t *testing.T) {
	src := t.TempDir()
	fake := newFakeIndex()
	l := NewLoader(fake, fake, "shared", t.TempDir(), quiet)
	l.settle = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx, src) }()
	time.Sleep(100 * time.Millisecond)

	p := write(t, src, "new.txt", "fresh")
	write(t, src, "ignored.png", "x")
	waitFor(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.contents["new.txt"] == "fresh"
	})

	os.Remove(p)
	waitFor(t, func() bool {
		calls := fake.snapshot()
		return calls[len(calls)-1] == call{"delete", "new.txt"}
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	for _, c := range fake.snapshot() {
		if c.file == "ignored.png" {
			t.Fatal("unsupported file was handled")
		}
	}
}
