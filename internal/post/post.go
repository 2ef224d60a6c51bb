// Package post defines the blog and post records that the sync engine
// reconciles against remote documents.
//
// A Post is the unit of content. Its identity across syncs is the stardate,
// an opaque UUID-style token assigned exactly once at first local save and
// never changed afterwards, even when the title or slug changes. A Blog owns
// a set of posts and the remote location they are synced with.
package post

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Post is a single blog post. Publish is nil for drafts; drafts are
// excluded from chronological ordering and feeds.
//
// Extra holds metadata keys that are not part of the known schema. They
// round-trip through the document format verbatim so that documents written
// by newer or foreign tools survive a pull/push cycle untouched.
type Post struct {
	ID     int64
	BlogID int64

	Stardate string
	Title    string
	Slug     string
	Body     string

	Publish  *time.Time
	Timezone string

	Created time.Time
	Updated time.Time
	Deleted bool

	Extra map[string]string
}

// Clean normalizes a post before it is saved locally. It assigns a stardate
// and a slug if they are missing and normalizes the body to end with exactly
// one trailing newline.
//
// Clean is idempotent: an already-assigned stardate or slug is never
// replaced. This is the single place identity is assigned; callers must not
// generate stardates themselves.
func (p *Post) Clean() {
	if p.Stardate == "" {
		p.Stardate = NewStardate()
	}
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	p.Body = NormalizeBody(p.Body)
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}
}

// Validate checks that a post has the fields required for local storage.
// It assumes Clean has already run.
func (p *Post) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if p.Stardate == "" {
		return fmt.Errorf("stardate is required")
	}
	return nil
}

// Draft reports whether the post has no publish instant.
func (p *Post) Draft() bool {
	return p.Publish == nil
}

// Filename returns the canonical blob name for this post in directory-backed
// storage: {slug}.md
func (p *Post) Filename() string {
	return p.Slug + ".md"
}

// NewStardate generates a fresh identity token. Uniqueness is what matters,
// not ordering; a time-based UUID keeps tokens distinct across machines.
func NewStardate() string {
	u, err := uuid.NewUUID()
	if err != nil {
		// NewUUID only fails when the clock source is unusable;
		// fall back to random.
		u = uuid.New()
	}
	return u.String()
}

// NormalizeBody trims trailing newline variance down to exactly one "\n".
func NormalizeBody(body string) string {
	for len(body) > 0 && body[len(body)-1] == '\n' {
		body = body[:len(body)-1]
	}
	return body + "\n"
}

// Blog is the configuration and sync state for one synced blog.
//
// BackendFile decides the storage shape: a path with a file extension means
// all posts live in one aggregate document blob; a bare directory path means
// one blob per post, named from the post slug.
type Blog struct {
	ID    int64
	Name  string
	Slug  string
	Owner string // username of the owning user

	Backend     string // blobstore kind: "local", "s3" or "gist"
	BackendFile string // blob path of the aggregate document, or a directory

	Timezone    string // IANA zone used when rendering publish instants
	SyncEnabled bool

	// LastSync records the remote LastModified observed by the most recent
	// pull, so an unchanged remote makes the next pull a no-op. Cursor is
	// an opaque transport hint with the same purpose; neither is a
	// correctness gate.
	LastSync time.Time
	Cursor   string
}

// Validate checks the fields required before a blog can sync.
func (b *Blog) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	if b.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if b.BackendFile == "" {
		return fmt.Errorf("backend file is required")
	}
	return nil
}
