package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/engine/ingest"
)

// Runner ingests one task. The pipeline deletes the task's file when done,
// so the loader always hands it a private copy.
type Runner interface {
	Run(ctx context.Context, task domain.Task) (ingest.Outcome, error)
}

// Forgetter removes a file's chunks from the index.
type Forgetter interface {
	DeleteFile(ctx context.Context, tenant, file string) error
}

// Loader ingests a directory of shared documents into the preloaded tenant.
type Loader struct {
	run     Runner
	index   Forgetter
	tenant  string
	staging string
	log     *slog.Logger

	// settle is how long a file must stay quiet before a watch re-ingests it.
	settle time.Duration
}

func NewLoader(run Runner, index Forgetter, tenant, staging string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if staging == "" {
		staging = os.TempDir()
	}
	return &Loader{run: run, index: index, tenant: tenant, staging: staging, log: logger, settle: time.Second}
}

// LoadDir ingests every supported top-level file in dir. Unsupported and
// hidden files are skipped. It keeps going past per-file failures and
// returns them joined.
func (l *Loader) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("preload: read %s: %w", dir, err)
	}
	var (
		loaded int
		errs   []error
	)
	for _, e := range entries {
		if ctx.Err() != nil {
			return loaded, ctx.Err()
		}
		if e.IsDir() || !eligible(e.Name()) {
			continue
		}
		if err := l.LoadFile(ctx, filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	return loaded, errors.Join(errs...)
}

// LoadFile replaces the chunks of one file.
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	docType, err := domain.DocTypeFromName(name)
	if err != nil {
		return fmt.Errorf("preload: %s: %w", name, err)
	}
	staged, err := l.stage(path)
	if err != nil {
		return fmt.Errorf("preload: stage %s: %w", name, err)
	}
	if err := l.index.DeleteFile(ctx, l.tenant, name); err != nil {
		os.Remove(staged)
		return fmt.Errorf("preload: %w", err)
	}
	task := domain.Task{
		ID:       uuid.NewString(),
		FilePath: staged,
		TenantID: l.tenant,
		FileName: name,
		Type:     docType,
		Attempt:  1,
	}
	out, err := l.run.Run(ctx, task)
	if err != nil {
		return err
	}
	l.log.Info("preloaded", "file", name, "status", out.Status, "chunks", out.Chunks, "indexed", out.Indexed)
	return nil
}

// Forget drops a removed file from the index.
func (l *Loader) Forget(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if err := l.index.DeleteFile(ctx, l.tenant, name); err != nil {
		return fmt.Errorf("preload: forget %s: %w", name, err)
	}
	l.log.Info("preloaded file removed", "file", name)
	return nil
}

func (l *Loader) stage(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := os.CreateTemp(l.staging, "preload-*"+filepath.Ext(path))
	if err != nil {
		return "", err
	}
	_, copyErr := io.Copy(dst, src)
	if err := errors.Join(copyErr, dst.Close()); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// Watch re-ingests files in dir as they change until ctx is done. Bursts
// of events for one file collapse into a single load once it settles.
func (l *Loader) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("preload: watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("preload: watch %s: %w", dir, err)
	}
	l.log.Info("watching for changes", "dir", dir)

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string, f func(context.Context, string) error) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok && t.Stop() {
			wg.Done()
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(l.settle, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == t {
				delete(pending, path)
			}
			mu.Unlock()
			if err := f(ctx, path); err != nil {
				l.log.Error("watch update failed", "file", filepath.Base(path), "err", err)
			}
		})
		pending[path] = t
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("watcher error", "err", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !eligible(filepath.Base(ev.Name)) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				schedule(ev.Name, l.LoadFile)
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				schedule(ev.Name, l.Forget)
			}
		}
	}
}

func eligible(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	_, err := domain.DocTypeFromName(name)
	return err == nil
}
