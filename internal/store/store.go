// Package store is the local record store: blogs and their posts in an
// embedded SQLite database.
//
// The database runs in WAL mode so watcher-driven pulls can read while an
// import writes. All timestamps are stored as UTC RFC 3339 text; publish is
// NULL for drafts. Unknown document metadata rides along in the extra
// column as JSON so it survives a pull/push cycle.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"github.com/blturner/stardate/internal/post"
)

// ErrNotFound is returned when a blog or post does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// Open creates or opens the database at path and prepares the schema.
// The caller must Close it.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path, log: logger}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := db.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS blogs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	slug          TEXT NOT NULL UNIQUE,
	owner         TEXT NOT NULL DEFAULT '',
	backend       TEXT NOT NULL DEFAULT 'local',
	backend_file  TEXT NOT NULL,
	timezone      TEXT NOT NULL DEFAULT '',
	sync_enabled  INTEGER NOT NULL DEFAULT 1,
	last_sync     TEXT NOT NULL DEFAULT '',
	cursor        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS posts (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	blog_id   INTEGER NOT NULL REFERENCES blogs(id) ON DELETE CASCADE,
	stardate  TEXT NOT NULL,
	title     TEXT NOT NULL,
	slug      TEXT NOT NULL,
	body      TEXT NOT NULL DEFAULT '',
	publish   TEXT,
	timezone  TEXT NOT NULL DEFAULT '',
	created   TEXT NOT NULL,
	updated   TEXT NOT NULL,
	deleted   INTEGER NOT NULL DEFAULT 0,
	extra     TEXT NOT NULL DEFAULT '{}',
	UNIQUE(blog_id, stardate),
	UNIQUE(blog_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_posts_publish ON posts(blog_id, publish);
`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// ---- blogs ----

// CreateBlog inserts a blog and assigns its ID.
func (db *DB) CreateBlog(b *post.Blog) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid blog: %w", err)
	}

	res, err := db.conn.Exec(`
		INSERT INTO blogs (name, slug, owner, backend, backend_file, timezone, sync_enabled, last_sync, cursor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Name, b.Slug, b.Owner, b.Backend, b.BackendFile, b.Timezone,
		boolInt(b.SyncEnabled), timeText(b.LastSync), b.Cursor)
	if err != nil {
		return fmt.Errorf("inserting blog %s: %w", b.Slug, err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

const blogColumns = `id, name, slug, owner, backend, backend_file, timezone, sync_enabled, last_sync, cursor`

// GetBlog fetches a blog by slug.
func (db *DB) GetBlog(slug string) (*post.Blog, error) {
	row := db.conn.QueryRow(`SELECT `+blogColumns+` FROM blogs WHERE slug = ?`, slug)
	return scanBlog(row)
}

// GetBlogByFile fetches the blog whose backend file contains path. Used by
// the watcher to map a filesystem event back to a blog: an event inside a
// directory-backed blog matches the directory, not the exact configured path.
func (db *DB) GetBlogByFile(path string) (*post.Blog, error) {
	row := db.conn.QueryRow(`SELECT `+blogColumns+` FROM blogs WHERE backend_file = ?`, path)
	b, err := scanBlog(row)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	row = db.conn.QueryRow(`SELECT `+blogColumns+` FROM blogs WHERE backend_file = ?`, filepath.Dir(path))
	return scanBlog(row)
}

// ListBlogs returns all blogs, or only those owned by one of owners when
// the list is non-empty.
func (db *DB) ListBlogs(owners []string) ([]post.Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs ORDER BY slug`
	var args []any
	if len(owners) > 0 {
		query = `SELECT ` + blogColumns + ` FROM blogs WHERE owner IN (?` +
			strings.Repeat(",?", len(owners)-1) + `) ORDER BY slug`
		for _, o := range owners {
			args = append(args, o)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing blogs: %w", err)
	}
	defer rows.Close()

	var blogs []post.Blog
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		blogs = append(blogs, *b)
	}
	return blogs, rows.Err()
}

// SetSyncState records the observed remote modification instant and cursor
// after a successful pull, making a repeat pull with no remote change a
// no-op.
func (db *DB) SetSyncState(blogID int64, lastSync time.Time, cursor string) error {
	_, err := db.conn.Exec(`UPDATE blogs SET last_sync = ?, cursor = ? WHERE id = ?`,
		timeText(lastSync), cursor, blogID)
	if err != nil {
		return fmt.Errorf("updating sync state for blog %d: %w", blogID, err)
	}
	return nil
}

// ---- posts ----

const postColumns = `id, blog_id, stardate, title, slug, body, publish, timezone, created, updated, deleted, extra`

// FindByIdentity resolves a post within a blog: an exact stardate match
// wins; title equality is the fallback for records that predate stardates.
// The two are never mixed — if the stardate is present and matches nothing,
// the title is still tried, but a stardate hit short-circuits.
// Returns ErrNotFound when neither matches.
func (db *DB) FindByIdentity(blogID int64, stardate, title string) (*post.Post, error) {
	if stardate != "" {
		row := db.conn.QueryRow(`SELECT `+postColumns+` FROM posts WHERE blog_id = ? AND stardate = ?`,
			blogID, stardate)
		p, err := scanPost(row)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if title == "" {
		return nil, ErrNotFound
	}
	row := db.conn.QueryRow(`SELECT `+postColumns+` FROM posts WHERE blog_id = ? AND title = ?`,
		blogID, title)
	return scanPost(row)
}

// Posts returns every post in a blog, newest publish first, drafts last.
func (db *DB) Posts(blogID int64) ([]post.Post, error) {
	return db.queryPosts(`SELECT `+postColumns+` FROM posts
		WHERE blog_id = ? ORDER BY publish IS NULL, publish DESC, id`, blogID)
}

// PublishedPosts returns the posts visible in chronological listings:
// published (publish set and not in the future) and not deleted.
func (db *DB) PublishedPosts(blogID int64) ([]post.Post, error) {
	return db.queryPosts(`SELECT `+postColumns+` FROM posts
		WHERE blog_id = ? AND deleted = 0 AND publish IS NOT NULL AND publish <= ?
		ORDER BY publish DESC`, blogID, timeText(time.Now().UTC()))
}

func (db *DB) queryPosts(query string, args ...any) ([]post.Post, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	var posts []post.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// SavePost inserts or updates a single post. The post must already be
// cleaned and valid; ID zero means insert.
func (db *DB) SavePost(p *post.Post) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid post %q: %w", p.Title, err)
	}
	p.Updated = time.Now().UTC()

	extra, err := encodeExtra(p.Extra)
	if err != nil {
		return err
	}

	if p.ID == 0 {
		res, err := db.conn.Exec(`
			INSERT INTO posts (blog_id, stardate, title, slug, body, publish, timezone, created, updated, deleted, extra)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.BlogID, p.Stardate, p.Title, p.Slug, p.Body, publishText(p.Publish), p.Timezone,
			timeText(p.Created), timeText(p.Updated), boolInt(p.Deleted), extra)
		if err != nil {
			return fmt.Errorf("inserting post %q: %w", p.Title, err)
		}
		p.ID, err = res.LastInsertId()
		return err
	}

	_, err = db.conn.Exec(`
		UPDATE posts SET stardate = ?, title = ?, slug = ?, body = ?, publish = ?, timezone = ?,
			created = ?, updated = ?, deleted = ?, extra = ?
		WHERE id = ?`,
		p.Stardate, p.Title, p.Slug, p.Body, publishText(p.Publish), p.Timezone,
		timeText(p.Created), timeText(p.Updated), boolInt(p.Deleted), extra, p.ID)
	if err != nil {
		return fmt.Errorf("updating post %q: %w", p.Title, err)
	}
	return nil
}

// UpsertPosts persists a batch of pulled posts in one transaction. A post
// that fails validation or violates a uniqueness constraint is logged and
// skipped; its siblings still land. Returns the number saved.
func (db *DB) UpsertPosts(posts []*post.Post) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	saved := 0
	for _, p := range posts {
		if err := db.upsertOne(tx, p); err != nil {
			db.log.Warn().Err(err).Str("title", p.Title).Msg("skipping post during batch upsert")
			continue
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert transaction: %w", err)
	}
	return saved, nil
}

func (db *DB) upsertOne(tx *sql.Tx, p *post.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Updated = time.Now().UTC()

	extra, err := encodeExtra(p.Extra)
	if err != nil {
		return err
	}

	if p.ID == 0 {
		res, err := tx.Exec(`
			INSERT INTO posts (blog_id, stardate, title, slug, body, publish, timezone, created, updated, deleted, extra)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.BlogID, p.Stardate, p.Title, p.Slug, p.Body, publishText(p.Publish), p.Timezone,
			timeText(p.Created), timeText(p.Updated), boolInt(p.Deleted), extra)
		if err != nil {
			return err
		}
		p.ID, err = res.LastInsertId()
		return err
	}

	_, err = tx.Exec(`
		UPDATE posts SET stardate = ?, title = ?, slug = ?, body = ?, publish = ?, timezone = ?,
			created = ?, updated = ?, deleted = ?, extra = ?
		WHERE id = ?`,
		p.Stardate, p.Title, p.Slug, p.Body, publishText(p.Publish), p.Timezone,
		timeText(p.Created), timeText(p.Updated), boolInt(p.Deleted), extra, p.ID)
	return err
}

// ---- scanning and encoding ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlog(row rowScanner) (*post.Blog, error) {
	var b post.Blog
	var syncEnabled int
	var lastSync string
	err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.Owner, &b.Backend, &b.BackendFile,
		&b.Timezone, &syncEnabled, &lastSync, &b.Cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning blog: %w", err)
	}
	b.SyncEnabled = syncEnabled != 0
	b.LastSync, err = parseTimeText(lastSync)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanPost(row rowScanner) (*post.Post, error) {
	var p post.Post
	var publish sql.NullString
	var created, updated, extra string
	var deleted int
	err := row.Scan(&p.ID, &p.BlogID, &p.Stardate, &p.Title, &p.Slug, &p.Body,
		&publish, &p.Timezone, &created, &updated, &deleted, &extra)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning post: %w", err)
	}

	p.Deleted = deleted != 0
	if publish.Valid {
		t, err := parseTimeText(publish.String)
		if err != nil {
			return nil, err
		}
		p.Publish = &t
	}
	if p.Created, err = parseTimeText(created); err != nil {
		return nil, err
	}
	if p.Updated, err = parseTimeText(updated); err != nil {
		return nil, err
	}
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &p.Extra); err != nil {
			return nil, fmt.Errorf("decoding extra fields: %w", err)
		}
	}
	return &p, nil
}

func encodeExtra(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("encoding extra fields: %w", err)
	}
	return string(data), nil
}

// timeText stores instants with second precision so the stored strings
// compare chronologically, which PublishedPosts relies on.
func timeText(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseTimeText(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

func publishText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeText(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
