package post

import (
	"strings"
	"testing"
	"time"
)

func TestClean_AssignsIdentity(t *testing.T) {
	p := &Post{Title: "My First Post", Body: "Hello."}
	p.Clean()

	if p.Stardate == "" {
		t.Fatal("Clean() did not assign a stardate")
	}
	if p.Slug != "my-first-post" {
		t.Errorf("slug = %q, want %q", p.Slug, "my-first-post")
	}
	if p.Body != "Hello.\n" {
		t.Errorf("body = %q, want trailing newline added", p.Body)
	}
	if p.Created.IsZero() {
		t.Error("Clean() did not set created")
	}
}

func TestClean_Idempotent(t *testing.T) {
	p := &Post{Title: "Title Changed Later", Body: "Hello.\n"}
	p.Clean()

	stardate := p.Stardate
	slug := p.Slug
	created := p.Created

	p.Title = "A Completely New Title"
	p.Clean()

	if p.Stardate != stardate {
		t.Errorf("stardate changed on second Clean(): %q -> %q", stardate, p.Stardate)
	}
	if p.Slug != slug {
		t.Errorf("slug changed on second Clean(): %q -> %q", slug, p.Slug)
	}
	if !p.Created.Equal(created) {
		t.Errorf("created changed on second Clean()")
	}
}

func TestNormalizeBody(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello.", "Hello.\n"},
		{"Hello.\n", "Hello.\n"},
		{"Hello.\n\n\n", "Hello.\n"},
		{"", "\n"},
		{"Line one.\n\nLine two.", "Line one.\n\nLine two.\n"},
	}
	for _, tt := range tests {
		if got := NormalizeBody(tt.in); got != tt.want {
			t.Errorf("NormalizeBody(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	p := &Post{Title: "Valid", Body: "ok\n"}
	p.Clean()
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() on cleaned post failed: %v", err)
	}

	missing := &Post{Body: "no title\n"}
	if err := missing.Validate(); err == nil {
		t.Error("Validate() accepted a post with no title")
	}
}

func TestDraft(t *testing.T) {
	p := &Post{Title: "Draft"}
	if !p.Draft() {
		t.Error("post with nil publish should be a draft")
	}
	now := time.Now()
	p.Publish = &now
	if p.Draft() {
		t.Error("post with publish set should not be a draft")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"Tingling of the spine", "tingling-of-the-spine"},
		{"What's  up?!", "whats-up"},
		{"--Already--Hyphenated--", "already-hyphenated"},
		{"UPPER case 123", "upper-case-123"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewStardate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sd := NewStardate()
		if sd == "" {
			t.Fatal("NewStardate() returned empty string")
		}
		if seen[sd] {
			t.Fatalf("NewStardate() returned duplicate %q", sd)
		}
		seen[sd] = true
	}
}

func TestFilename(t *testing.T) {
	p := &Post{Title: "Foo Bar"}
	p.Clean()
	if !strings.HasSuffix(p.Filename(), ".md") {
		t.Errorf("Filename() = %q, want .md suffix", p.Filename())
	}
	if p.Filename() != "foo-bar.md" {
		t.Errorf("Filename() = %q, want %q", p.Filename(), "foo-bar.md")
	}
}
