package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lattice/internal/checksum"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/storage"
)

// ArchiveDir receives inbox files once they are imported.
const ArchiveDir = ".imported"

// InboxOptions tunes an InboxWatcher.
type InboxOptions struct {
	// Debounce waits for writes to a path to settle. Default 300ms.
	Debounce time.Duration
	// DeleteAfterImport removes files instead of archiving them.
	DeleteAfterImport bool
	Logger            *slog.Logger
	// OnImport is called after each successful import.
	OnImport func(n models.Note, path string)
}

// InboxWatcher imports text files dropped into a directory. Each file is
// imported once: afterwards it is archived (or deleted) and its digest is
// remembered so a rewrite with identical bytes is ignored.
type InboxWatcher struct {
	root     string
	files    storage.Provider
	importer *Importer
	opts     InboxOptions
	logger   *slog.Logger

	ready atomic.Bool

	mu   sync.Mutex
	seen map[string]bool
}

// NewInboxWatcher creates a watcher over root, which files must be rooted at.
func NewInboxWatcher(root string, files storage.Provider, imp *Importer, opts InboxOptions) *InboxWatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &InboxWatcher{
		root:     root,
		files:    files,
		importer: imp,
		opts:     opts,
		logger:   opts.Logger,
		seen:     map[string]bool{},
	}
}

// Name implements Source.
func (w *InboxWatcher) Name() string { return "inbox" }

// Init imports whatever is already waiting in the inbox.
func (w *InboxWatcher) Init(ctx context.Context) error {
	imported, skipped, err := w.importExisting(ctx)
	if err != nil {
		return err
	}
	w.ready.Store(true)
	w.logger.Info("importer: inbox ready", slog.String("root", w.root),
		slog.Int("imported", imported), slog.Int("skipped", skipped))
	return nil
}

// importExisting imports every listed file, deduplicating on the digest
// List already computed.
func (w *InboxWatcher) importExisting(ctx context.Context) (imported, skipped int, err error) {
	metas, err := w.files.List("")
	if err != nil {
		return 0, 0, fmt.Errorf("importer: inbox scan: %w", err)
	}
	for _, m := range metas {
		if ctx.Err() != nil {
			return imported, skipped, ctx.Err()
		}
		if w.importFile(m.Path, m.Checksum) {
			imported++
		} else {
			skipped++
		}
	}
	return imported, skipped, nil
}

// IsReady implements Source.
func (w *InboxWatcher) IsReady() bool { return w.ready.Load() }

// Teardown implements Source. Run returns on its own when ctx ends.
func (w *InboxWatcher) Teardown() error {
	w.ready.Store(false)
	return nil
}

// Run watches the inbox until ctx is cancelled. New subdirectories are
// added to the watch list and scanned.
func (w *InboxWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("importer: inbox watcher started", slog.String("root", w.root))

	due := make(chan string, 64)
	timers := map[string]*time.Timer{}
	schedule := func(rel string) {
		if t, ok := timers[rel]; ok {
			t.Reset(w.opts.Debounce)
			return
		}
		timers[rel] = time.AfterFunc(w.opts.Debounce, func() {
			select {
			case due <- rel:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			w.logger.Info("importer: inbox watcher stopped")
			return nil

		case rel := <-due:
			delete(timers, rel)
			w.importFile(rel, "")

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			abs := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if strings.HasPrefix(info.Name(), ".") {
						continue
					}
					if addErr := addDirsRecursive(fw, abs); addErr != nil {
						w.logger.Warn("importer: watch new dir failed",
							slog.String("path", abs), slog.String("error", addErr.Error()))
					}
					w.scanDir(abs, schedule)
					continue
				}
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !w.files.Importable(abs) {
				continue
			}
			rel, relErr := filepath.Rel(w.root, abs)
			if relErr != nil || strings.HasPrefix(rel, ArchiveDir) {
				continue
			}
			schedule(rel)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("importer: inbox watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *InboxWatcher) scanDir(dir string, schedule func(string)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.files.Importable(p) {
			return nil
		}
		if rel, relErr := filepath.Rel(w.root, p); relErr == nil {
			schedule(rel)
		}
		return nil
	})
}

// importFile imports rel once and archives it. sum is the digest of the
// file when the caller already has it. Files that vanished or were already
// imported with identical bytes are skipped. It reports whether a note was
// created.
func (w *InboxWatcher) importFile(rel, sum string) bool {
	if sum != "" && w.isSeen(sum) {
		w.archive(rel)
		return false
	}
	data, err := w.files.Read(rel)
	if err != nil {
		w.logger.Debug("importer: inbox file unreadable", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	if sum == "" {
		sum = checksum.Sum(data)
	}
	w.mu.Lock()
	if w.seen[sum] {
		w.mu.Unlock()
		w.archive(rel)
		return false
	}
	w.seen[sum] = true
	w.mu.Unlock()

	n, err := w.importer.importAs(w.Name(), TitleFromName(rel), string(data))
	if err != nil {
		w.mu.Lock()
		delete(w.seen, sum)
		w.mu.Unlock()
		return false
	}
	w.archive(rel)
	if w.opts.OnImport != nil {
		w.opts.OnImport(n, rel)
	}
	return true
}

func (w *InboxWatcher) isSeen(sum string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[sum]
}

func (w *InboxWatcher) archive(rel string) {
	var err error
	if w.opts.DeleteAfterImport {
		err = w.files.Delete(rel)
	} else {
		err = w.files.Move(rel, filepath.Join(ArchiveDir, rel))
	}
	if err != nil {
		w.logger.Warn("importer: inbox archive failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

// addDirsRecursive adds root and its non-hidden subdirectories to fw.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}
