// Package sync implements the bidirectional reconciliation between the
// local record store and a blog's remote document storage.
//
// Pull merges remote document state into local records; Push writes local
// records back out. Identity is resolved by stardate first, with title
// equality as the one-time fallback for documents that predate stardates.
// Both directions are resilient: a malformed entry, an invalid record or an
// unreachable remote degrades to a logged partial result, never a failed
// batch. The engine holds no cross-call state; everything it needs lives on
// the blog row, so callers may sync distinct blogs concurrently as long as
// they serialize operations per blog.
package sync

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blturner/stardate/internal/blobstore"
	"github.com/blturner/stardate/internal/document"
	"github.com/blturner/stardate/internal/post"
	"github.com/blturner/stardate/internal/store"
)

// Config carries the settings the engine needs beyond its collaborators.
type Config struct {
	// Blobs holds per-transport credentials for constructing stores.
	Blobs blobstore.Options
	// DefaultTimezone is applied to pulled entries that carry none.
	DefaultTimezone string
}

// Engine reconciles blogs. Construct with New.
type Engine struct {
	db    *store.DB
	codec *document.Codec
	cfg   Config
	log   zerolog.Logger

	mu     gosync.Mutex
	stores map[string]blobstore.Store
}

// New creates an Engine backed by db.
func New(db *store.DB, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		db:     db,
		codec:  document.New(logger),
		cfg:    cfg,
		log:    logger,
		stores: make(map[string]blobstore.Store),
	}
}

// StoreFor returns the blob store for a blog's backend kind, constructing
// it on first use. An unknown kind is a configuration error.
func (e *Engine) StoreFor(blog *post.Blog) (blobstore.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.stores[blog.Backend]; ok {
		return s, nil
	}
	s, err := blobstore.New(blog.Backend, e.cfg.Blobs)
	if err != nil {
		return nil, err
	}
	e.stores[blog.Backend] = s
	return s, nil
}

// PullResult summarizes one pull.
type PullResult struct {
	Created int
	Updated int
	Saved   int
	Skipped bool // remote unchanged, nothing fetched
}

// Pull merges the blog's remote document state into local records.
//
// Unless force is set, an unchanged remote (by LastModified against the
// blog's recorded last sync) is skipped outright; the skip is a cheap
// optimization, never a correctness gate. Transport failures degrade to "no
// remote data" so an unreachable remote cannot corrupt local state.
func (e *Engine) Pull(ctx context.Context, blog *post.Blog, force bool) (PullResult, error) {
	if !blog.SyncEnabled {
		return PullResult{Skipped: true}, nil
	}

	bs, err := e.StoreFor(blog)
	if err != nil {
		return PullResult{}, err
	}

	remoteMod, err := bs.LastModified(ctx, blog.BackendFile)
	if err != nil {
		e.log.Error().Err(err).Str("blog", blog.Slug).Msg("remote unreachable, skipping pull")
		return PullResult{Skipped: true}, nil
	}
	// Sync state is stored with second precision; compare at the same
	// granularity or an unchanged remote would never look unchanged.
	remoteMod = remoteMod.Truncate(time.Second)
	if remoteMod.IsZero() {
		// Nothing remote yet.
		return PullResult{Skipped: true}, nil
	}
	if !force && !blog.LastSync.IsZero() && !remoteMod.After(blog.LastSync) {
		return PullResult{Skipped: true}, nil
	}

	entries := e.fetchEntries(ctx, bs, blog)

	var batch []*post.Post
	result := PullResult{}
	for _, entry := range entries {
		if entry.Timezone == "" {
			entry.Timezone = blog.Timezone
			if entry.Timezone == "" {
				entry.Timezone = e.cfg.DefaultTimezone
			}
		}

		// Entries earlier in this same pull are match candidates too,
		// so duplicate remote entries collapse instead of duplicating.
		if pending := matchPost(batch, entry); pending != nil {
			mergeRemote(pending, entry)
			continue
		}

		local, err := e.db.FindByIdentity(blog.ID, entry.Stardate, entry.Title)
		switch {
		case err == nil:
			mergeRemote(local, entry)
			batch = append(batch, local)
			result.Updated++
		case errors.Is(err, store.ErrNotFound):
			created := entry
			created.BlogID = blog.ID
			created.Clean()
			batch = append(batch, &created)
			result.Created++
		default:
			return result, fmt.Errorf("resolving identity for %q: %w", entry.Title, err)
		}
	}

	result.Saved, err = e.db.UpsertPosts(batch)
	if err != nil {
		return result, err
	}

	if err := e.db.SetSyncState(blog.ID, remoteMod, blog.Cursor); err != nil {
		return result, err
	}
	blog.LastSync = remoteMod

	e.log.Info().Str("blog", blog.Slug).
		Int("created", result.Created).Int("updated", result.Updated).Int("saved", result.Saved).
		Msg("pulled remote posts")
	return result, nil
}

// fetchEntries reads and parses the blog's remote document(s). Read
// failures are logged and yield no entries.
func (e *Engine) fetchEntries(ctx context.Context, bs blobstore.Store, blog *post.Blog) []post.Post {
	if singleBlob(blog) {
		raw, err := bs.Read(ctx, blog.BackendFile)
		if err != nil {
			e.log.Error().Err(err).Str("blog", blog.Slug).Msg("reading remote document failed")
			return nil
		}
		return e.codec.Unpack(string(raw))
	}

	paths, err := bs.List(ctx, blog.BackendFile)
	if err != nil {
		e.log.Error().Err(err).Str("blog", blog.Slug).Msg("listing remote directory failed")
		return nil
	}

	var entries []post.Post
	for _, p := range paths {
		raw, err := bs.Read(ctx, p)
		if err != nil {
			e.log.Error().Err(err).Str("path", p).Msg("reading remote blob failed")
			continue
		}
		if raw == nil {
			continue
		}
		entry, err := e.codec.Parse(string(raw))
		if err != nil {
			e.log.Warn().Err(err).Str("path", p).Msg("dropping malformed remote blob")
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// PushResult summarizes one push.
type PushResult struct {
	Written int // blobs written
	Posts   int // posts pushed
}

// Push writes local posts out to the blog's remote storage. The storage
// shape follows the configured path: a file extension means one aggregate
// document blob, a bare directory means one blob per post named from its
// slug. On conflicting fields the local record wins; remote-only extension
// fields and unmatched remote entries are preserved.
func (e *Engine) Push(ctx context.Context, blog *post.Blog, posts []post.Post) (PushResult, error) {
	if !blog.SyncEnabled || len(posts) == 0 {
		return PushResult{}, nil
	}

	bs, err := e.StoreFor(blog)
	if err != nil {
		return PushResult{}, err
	}

	if singleBlob(blog) {
		return e.pushSingle(ctx, bs, blog, posts)
	}
	return e.pushDirectory(ctx, bs, blog, posts)
}

func (e *Engine) pushSingle(ctx context.Context, bs blobstore.Store, blog *post.Blog, posts []post.Post) (PushResult, error) {
	raw, err := bs.Read(ctx, blog.BackendFile)
	if err != nil {
		e.log.Error().Err(err).Str("blog", blog.Slug).Msg("reading remote document before push failed, treating as empty")
		raw = nil
	}
	entries := e.codec.Unpack(string(raw))

	for _, p := range posts {
		if remote := matchEntry(entries, p); remote != nil {
			mergeLocal(remote, p)
		} else {
			entries = append(entries, p)
		}
	}

	if err := bs.Write(ctx, blog.BackendFile, []byte(e.codec.Pack(entries))); err != nil {
		return PushResult{}, fmt.Errorf("pushing document for blog %s: %w", blog.Slug, err)
	}

	e.log.Info().Str("blog", blog.Slug).Int("posts", len(posts)).Msg("pushed posts to remote document")
	return PushResult{Written: 1, Posts: len(posts)}, nil
}

func (e *Engine) pushDirectory(ctx context.Context, bs blobstore.Store, blog *post.Blog, posts []post.Post) (PushResult, error) {
	result := PushResult{}
	var firstErr error

	for _, p := range posts {
		blobPath := joinBlobPath(blog, p.Filename())

		raw, err := bs.Read(ctx, blobPath)
		if err != nil {
			e.log.Error().Err(err).Str("path", blobPath).Msg("reading remote blob before push failed, treating as empty")
			raw = nil
		}

		entry := p
		if raw != nil {
			if remote, err := e.codec.Parse(string(raw)); err == nil {
				mergeLocal(&remote, p)
				entry = remote
			}
		}

		if err := bs.Write(ctx, blobPath, []byte(e.codec.Render(entry))); err != nil {
			e.log.Error().Err(err).Str("path", blobPath).Msg("writing remote blob failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("pushing %s: %w", blobPath, err)
			}
			continue
		}
		result.Written++
		result.Posts++
	}
	return result, firstErr
}

// SavePost is the save hook: it cleans and validates the post, persists it
// locally, then pushes it to the blog's remote synchronously. The local
// save is not rolled back when the push fails; the returned error reports
// the failed push so the caller can retry it.
func (e *Engine) SavePost(ctx context.Context, blog *post.Blog, p *post.Post) error {
	p.BlogID = blog.ID
	p.Clean()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := e.db.SavePost(p); err != nil {
		return err
	}
	_, err := e.Push(ctx, blog, []post.Post{*p})
	return err
}

// PushAll pushes every local post of the blog.
func (e *Engine) PushAll(ctx context.Context, blog *post.Blog) (PushResult, error) {
	posts, err := e.db.Posts(blog.ID)
	if err != nil {
		return PushResult{}, err
	}
	return e.Push(ctx, blog, posts)
}

func singleBlob(blog *post.Blog) bool {
	return filepath.Ext(blog.BackendFile) != ""
}

// joinBlobPath appends a blob name to the blog's directory path. Local
// paths use the OS separator; remote object keys are always slash-joined.
func joinBlobPath(blog *post.Blog, name string) string {
	if blog.Backend == blobstore.KindLocal || blog.Backend == "" {
		return filepath.Join(blog.BackendFile, name)
	}
	return path.Join(blog.BackendFile, name)
}

// matchPost resolves an entry against posts already touched in this pull:
// stardate first across the whole batch, then title.
func matchPost(batch []*post.Post, entry post.Post) *post.Post {
	if entry.Stardate != "" {
		for _, p := range batch {
			if p.Stardate == entry.Stardate {
				return p
			}
		}
	}
	if entry.Title == "" {
		return nil
	}
	for _, p := range batch {
		if p.Title == entry.Title {
			return p
		}
	}
	return nil
}

// matchEntry resolves a local post against remote entries the same way.
func matchEntry(entries []post.Post, p post.Post) *post.Post {
	if p.Stardate != "" {
		for i := range entries {
			if entries[i].Stardate == p.Stardate {
				return &entries[i]
			}
		}
	}
	if p.Title == "" {
		return nil
	}
	for i := range entries {
		if entries[i].Title == p.Title {
			return &entries[i]
		}
	}
	return nil
}

// mergeRemote applies a pulled entry onto a local record. Fields present in
// the entry overwrite the record, except identity: a stardate, once
// assigned, never changes, and the local creation instant survives an entry
// that carries none.
func mergeRemote(local *post.Post, entry post.Post) {
	local.Title = entry.Title
	local.Body = post.NormalizeBody(entry.Body)
	local.Publish = entry.Publish
	local.Deleted = entry.Deleted
	if entry.Slug != "" {
		local.Slug = entry.Slug
	}
	if entry.Timezone != "" {
		local.Timezone = entry.Timezone
	}
	if local.Stardate == "" {
		local.Stardate = entry.Stardate
	}
	if !entry.Created.IsZero() {
		local.Created = entry.Created
	}
	if entry.Extra != nil {
		if local.Extra == nil {
			local.Extra = make(map[string]string)
		}
		for k, v := range entry.Extra {
			local.Extra[k] = v
		}
	}
}

// mergeLocal applies a local post onto a remote entry for push-back. The
// local record wins on every conflicting field; extension fields that only
// the remote knows about are kept.
func mergeLocal(remote *post.Post, p post.Post) {
	remote.Stardate = p.Stardate
	remote.Title = p.Title
	remote.Slug = p.Slug
	remote.Body = p.Body
	remote.Publish = p.Publish
	remote.Timezone = p.Timezone
	remote.Deleted = p.Deleted
	if !p.Created.IsZero() {
		remote.Created = p.Created
	}
	for k, v := range p.Extra {
		if remote.Extra == nil {
			remote.Extra = make(map[string]string)
		}
		remote.Extra[k] = v
	}
}
