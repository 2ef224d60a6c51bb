// Package watch maps filesystem change events on blog-backed files to
// per-blog pulls.
//
// Only blogs on the local backend can be watched; remote backends have no
// filesystem presence. The watcher watches the directory containing each
// blog's backend file (fsnotify watches directories more reliably than
// individual files across editors that write via rename) and resolves each
// event back to its blog through the record store. Events for the same blog
// are debounced so an editor's save burst triggers one pull, and pulls for
// one blog never run concurrently — the engine expects its caller to
// serialize per blog.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/blturner/stardate/internal/blobstore"
	"github.com/blturner/stardate/internal/post"
	"github.com/blturner/stardate/internal/store"
	enginesync "github.com/blturner/stardate/internal/sync"
)

// DefaultDebounce is how long the watcher waits after the last event for a
// blog before pulling.
const DefaultDebounce = 500 * time.Millisecond

// Watcher runs pulls in response to filesystem changes.
type Watcher struct {
	db       *store.DB
	engine   *enginesync.Engine
	log      zerolog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	timers  map[string]*time.Timer // blog slug -> pending pull
}

// New creates a Watcher. It must be started with Start and stopped with
// Stop.
func New(db *store.DB, engine *enginesync.Engine, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		db:       db,
		engine:   engine,
		log:      logger,
		debounce: DefaultDebounce,
		watcher:  fsw,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Start begins watching the directories of every local-backend blog.
// Returns an error when there is nothing to watch.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	blogs, err := w.db.ListBlogs(nil)
	if err != nil {
		return err
	}

	watched := 0
	seen := map[string]bool{}
	for _, blog := range blogs {
		if blog.Backend != blobstore.KindLocal && blog.Backend != "" {
			continue
		}
		if !blog.SyncEnabled {
			continue
		}
		dir := watchDir(&blog)
		if seen[dir] {
			watched++
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.log.Error().Err(err).Str("dir", dir).Str("blog", blog.Slug).Msg("cannot watch directory")
			continue
		}
		seen[dir] = true
		watched++
		w.log.Info().Str("dir", dir).Str("blog", blog.Slug).Msg("watching")
	}

	if watched == 0 {
		return fmt.Errorf("no local-backend blogs to watch")
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents(ctx)
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		// never started (or already stopped): still release the inotify
		// handle created in New; fsnotify tolerates a double Close
		return w.watcher.Close()
	}
	w.running = false
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("closing watcher: %w", err)
	}
	return nil
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.handleChange(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watch error")
		}
	}
}

// handleChange resolves a changed path to its blog and schedules a
// debounced pull.
func (w *Watcher) handleChange(ctx context.Context, path string) {
	blog, err := w.db.GetBlogByFile(path)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("resolving changed path")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	slug := blog.Slug
	if t, ok := w.timers[slug]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[slug] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, slug)
		w.mu.Unlock()
		w.pull(ctx, slug)
	})
}

func (w *Watcher) pull(ctx context.Context, slug string) {
	// Re-read the blog so the pull sees the current sync state; the
	// debounce timer may fire long after the event.
	blog, err := w.db.GetBlog(slug)
	if err != nil {
		w.log.Error().Err(err).Str("blog", slug).Msg("loading blog for pull")
		return
	}

	res, err := w.engine.Pull(ctx, blog, false)
	if err != nil {
		w.log.Error().Err(err).Str("blog", slug).Msg("watch-triggered pull failed")
		return
	}
	if !res.Skipped {
		w.log.Info().Str("blog", slug).
			Int("created", res.Created).Int("updated", res.Updated).
			Msg("pulled after file change")
	}
}

// watchDir returns the directory to watch for a blog: the backend file's
// parent for single-document blogs, the directory itself otherwise.
func watchDir(blog *post.Blog) string {
	if filepath.Ext(blog.BackendFile) != "" {
		return filepath.Dir(blog.BackendFile)
	}
	return blog.BackendFile
}
