package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/blturner/stardate/internal/post"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "stardate.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testBlog(t *testing.T, db *DB) *post.Blog {
	t.Helper()
	b := &post.Blog{
		Name:        "Test Blog",
		Slug:        "test-blog",
		Owner:       "bturner",
		Backend:     "memory",
		BackendFile: "/blogs/test-blog.md",
		SyncEnabled: true,
	}
	if err := db.CreateBlog(b); err != nil {
		t.Fatalf("CreateBlog() failed: %v", err)
	}
	return b
}

func newPost(blogID int64, title string) *post.Post {
	p := &post.Post{BlogID: blogID, Title: title, Body: "Body.\n"}
	p.Clean()
	return p
}

func TestCreateAndGetBlog(t *testing.T) {
	db := testDB(t)
	b := testBlog(t, db)

	if b.ID == 0 {
		t.Fatal("CreateBlog() did not assign an ID")
	}

	got, err := db.GetBlog("test-blog")
	if err != nil {
		t.Fatalf("GetBlog() failed: %v", err)
	}
	if got.Name != "Test Blog" || got.Owner != "bturner" || !got.SyncEnabled {
		t.Errorf("GetBlog() = %+v", got)
	}

	if _, err := db.GetBlog("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBlog(nope) error = %v, want ErrNotFound", err)
	}
}

func TestGetBlogByFile(t *testing.T) {
	db := testDB(t)

	dirBlog := &post.Blog{Name: "Dir", Slug: "dir", BackendFile: "/blogs/dir", SyncEnabled: true}
	if err := db.CreateBlog(dirBlog); err != nil {
		t.Fatalf("CreateBlog() failed: %v", err)
	}

	got, err := db.GetBlogByFile("/blogs/dir/foo.md")
	if err != nil {
		t.Fatalf("GetBlogByFile() failed: %v", err)
	}
	if got.Slug != "dir" {
		t.Errorf("GetBlogByFile() = %q, want %q", got.Slug, "dir")
	}
}

func TestListBlogs_OwnerFilter(t *testing.T) {
	db := testDB(t)
	for _, b := range []*post.Blog{
		{Name: "A", Slug: "a", Owner: "alice", BackendFile: "/a.md"},
		{Name: "B", Slug: "b", Owner: "bob", BackendFile: "/b.md"},
		{Name: "C", Slug: "c", Owner: "alice", BackendFile: "/c.md"},
	} {
		if err := db.CreateBlog(b); err != nil {
			t.Fatalf("CreateBlog(%s) failed: %v", b.Slug, err)
		}
	}

	all, err := db.ListBlogs(nil)
	if err != nil {
		t.Fatalf("ListBlogs(nil) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListBlogs(nil) = %d blogs, want 3", len(all))
	}

	alice, err := db.ListBlogs([]string{"alice"})
	if err != nil {
		t.Fatalf("ListBlogs(alice) failed: %v", err)
	}
	if len(alice) != 2 {
		t.Errorf("ListBlogs(alice) = %d blogs, want 2", len(alice))
	}
}

func TestSetSyncState(t *testing.T) {
	db := testDB(t)
	b := testBlog(t, db)

	when := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	if err := db.SetSyncState(b.ID, when, "cursor-1"); err != nil {
		t.Fatalf("SetSyncState() failed: %v", err)
	}

	got, err := db.GetBlog(b.Slug)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastSync.Equal(when) {
		t.Errorf("last sync = %v, want %v", got.LastSync, when)
	}
	if got.Cursor != "cursor-1" {
		t.Errorf("cursor = %q, want %q", got.Cursor, "cursor-1")
	}
}

func TestSavePost_RoundTrip(t *testing.T) {
	db := testDB(t)
	b := testBlog(t, db)

	publish := time.Date(2012, 1, 1, 14, 0, 0, 0, time.UTC)
	p := newPost(b.ID, "Hello World")
	p.Publish = &publish
	p.Timezone = "US/Eastern"
	p.Extra = map[string]string{"mood": "good"}

	if err := db.SavePost(p); err != nil {
		t.Fatalf("SavePost() failed: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("SavePost() did not assign an ID")
	}

	got, err := db.FindByIdentity(b.ID, p.Stardate, "")
	if err != nil {
		t.Fatalf("FindByIdentity() failed: %v", err)
	}
	if got.Title != "Hello World" || got.Body != "Body.\n" {
		t.Errorf("found post = %+v", got)
	}
	if got.Publish == nil || !got.Publish.Equal(publish) {
		t.Errorf("publish = %v, want %v", got.Publish, publish)
	}
	if got.Extra["mood"] != "good" {
		t.Errorf("extra = %v", got.Extra)
	}
}

func TestFindByIdentity_StardateWins(t *testing.T) {
	db := testDB(t)
	b := testBlog(t, db)

	first := newPost(b.ID, "Shared Title")
	if err := db.SavePost(first); err != nil {
		t.Fatal(err)
	}

	// Stardate match beats the title fallback even when another record
	// shares the title we would fall back to.
	second := newPost(b.ID, "Another Title")
	if err := db.SavePost(second); err != nil {
		t.Fatal(err)
	}

	got, err := db.FindByIdentity(b.ID, second.Stardate, "Shared Title")
	if err != nil {
		t.Fatalf("FindByIdentity() failed: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("matched post %d, want stardate match %d", got.ID, second.ID)
	}

	// Unknown stardate degrades to the title fallback.
	got, err = db.FindByIdentity(b.ID, "no-such-stardate", "Shared Title")
	if err != nil {
		t.Fatalf("FindByIdentity() fallback failed: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("matched post %d, want title match %d", got.ID, first.ID)
	}

	if _, err := db.FindByIdentity(b.ID, "no-such-stardate", "No Such Title"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpsertPosts_SkipsInvalid(t *testing.T) {
	db := testDB(t)
	b := testBlog(t, db)

	good := newPost(b.ID, "Good One")
	alsoGood := newPost(b.ID, "Good Two")
	bad := &post.Post{BlogID: b.ID, Body: "no title, not cleaned\n"}

	saved, err := db.UpsertPosts([]*post.Post{good, bad, alsoGood})
	if err != nil {
		t.Fatalf("UpsertPosts() failed: %v", err)
	}
	if saved != 2 {
		t.Errorf("UpsertPosts() saved %d, want 2", saved)
	}

	posts, err := db.Posts(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 {
		t.Errorf("Posts() = %d, want 2", len(posts))
	}
}

func TestUpsertPosts_DuplicateSlugSkipped(t *testing.T) {
	db := testDB(t)
	b := testBlog(t, db)

	first := newPost(b.ID, "Same Title")
	dup := newPost(b.ID, "Same Title") // same slug, different stardate

	saved, err := db.UpsertPosts([]*post.Post{first, dup})
	if err != nil {
		t.Fatalf("UpsertPosts() failed: %v", err)
	}
	if saved != 1 {
		t.Errorf("UpsertPosts() saved %d, want 1 (duplicate slug skipped)", saved)
	}
}

func TestPublishedPosts(t *testing.T) {
	db := testDB(t)
	b := testBlog(t, db)

	past := time.Now().UTC().Add(-24 * time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)
	older := past.Add(-24 * time.Hour)

	published := newPost(b.ID, "Published")
	published.Publish = &past
	olderPost := newPost(b.ID, "Older")
	olderPost.Publish = &older
	scheduled := newPost(b.ID, "Scheduled")
	scheduled.Publish = &future
	draft := newPost(b.ID, "Draft")
	deleted := newPost(b.ID, "Deleted")
	deleted.Publish = &past
	deleted.Deleted = true

	for _, p := range []*post.Post{published, olderPost, scheduled, draft, deleted} {
		if err := db.SavePost(p); err != nil {
			t.Fatalf("SavePost(%s) failed: %v", p.Title, err)
		}
	}

	got, err := db.PublishedPosts(b.ID)
	if err != nil {
		t.Fatalf("PublishedPosts() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("PublishedPosts() = %d posts, want 2", len(got))
	}
	if got[0].Title != "Published" || got[1].Title != "Older" {
		t.Errorf("order = %q, %q; want newest first", got[0].Title, got[1].Title)
	}
}
