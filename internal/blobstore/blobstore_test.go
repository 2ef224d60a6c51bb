package blobstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New("carrier-pigeon", Options{}); err == nil {
		t.Error("New() accepted an unknown kind")
	}
}

func TestNew_DefaultsToLocal(t *testing.T) {
	s, err := New("", Options{})
	if err != nil {
		t.Fatalf("New(\"\") failed: %v", err)
	}
	if _, ok := s.(*Local); !ok {
		t.Errorf("New(\"\") = %T, want *Local", s)
	}
}

func TestLocal_ReadMissing(t *testing.T) {
	l := NewLocal()
	data, err := l.Read(context.Background(), filepath.Join(t.TempDir(), "nope.md"))
	if err != nil {
		t.Fatalf("Read() of missing file errored: %v", err)
	}
	if data != nil {
		t.Errorf("Read() of missing file = %q, want nil", data)
	}
}

func TestLocal_WriteReadList(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	dir := t.TempDir()

	if err := l.Write(ctx, filepath.Join(dir, "posts", "foo.md"), []byte("foo\n")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := l.Write(ctx, filepath.Join(dir, "posts", "bar.md"), []byte("bar\n")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	data, err := l.Read(ctx, filepath.Join(dir, "posts", "foo.md"))
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if string(data) != "foo\n" {
		t.Errorf("Read() = %q, want %q", data, "foo\n")
	}

	paths, err := l.List(ctx, filepath.Join(dir, "posts"))
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("List() = %d paths, want 2", len(paths))
	}
	// os.ReadDir sorts by name.
	if filepath.Base(paths[0]) != "bar.md" || filepath.Base(paths[1]) != "foo.md" {
		t.Errorf("List() = %v, want bar.md then foo.md", paths)
	}
}

func TestLocal_LastModified(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "blog.md")

	zero, err := l.LastModified(ctx, filepath.Join(dir, "missing.md"))
	if err != nil {
		t.Fatalf("LastModified() of missing path errored: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("LastModified() of missing path = %v, want zero", zero)
	}

	if err := os.WriteFile(file, []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := l.LastModified(ctx, file)
	if err != nil {
		t.Fatalf("LastModified() failed: %v", err)
	}
	if got.IsZero() {
		t.Error("LastModified() of existing file is zero")
	}

	// Directory mode reports the newest child.
	dirMod, err := l.LastModified(ctx, dir)
	if err != nil {
		t.Fatalf("LastModified() of directory failed: %v", err)
	}
	if dirMod.Before(got) {
		t.Errorf("directory LastModified %v is older than child %v", dirMod, got)
	}
}

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if data, err := m.Read(ctx, "/missing"); err != nil || data != nil {
		t.Errorf("Read() of missing blob = %q, %v; want nil, nil", data, err)
	}

	if err := m.Write(ctx, "/blog/foo.md", []byte("foo\n")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := m.Write(ctx, "/blog/bar.md", []byte("bar\n")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	data, err := m.Read(ctx, "/blog/foo.md")
	if err != nil || string(data) != "foo\n" {
		t.Errorf("Read() = %q, %v", data, err)
	}

	paths, err := m.List(ctx, "/blog")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/blog/bar.md" {
		t.Errorf("List() = %v, want sorted blog children", paths)
	}
}

func TestMemory_LastModifiedDirectory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	clock := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return clock }

	m.Write(ctx, "/blog/a.md", []byte("a\n"))
	clock = clock.Add(time.Hour)
	m.Write(ctx, "/blog/b.md", []byte("b\n"))

	got, err := m.LastModified(ctx, "/blog")
	if err != nil {
		t.Fatalf("LastModified() failed: %v", err)
	}
	if !got.Equal(clock) {
		t.Errorf("LastModified() = %v, want newest child %v", got, clock)
	}
}

func TestGist_ReadWrite(t *testing.T) {
	files := map[string]string{"blog.md": "title: Hello\n\n\nHello world.\n"}
	updated := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			out := map[string]any{
				"files":      map[string]any{},
				"updated_at": updated,
			}
			for name, content := range files {
				out["files"].(map[string]any)[name] = map[string]string{"content": content}
			}
			json.NewEncoder(w).Encode(out)
		case http.MethodPatch:
			var payload struct {
				Files map[string]struct {
					Content string `json:"content"`
				} `json:"files"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for name, f := range payload.Files {
				files[name] = f.Content
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "nope", http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	g := NewGist(Options{GistAPIBase: srv.URL, GistID: "abc123", GistToken: "tok"})
	ctx := context.Background()

	data, err := g.Read(ctx, "/anything/blog.md")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if string(data) != "title: Hello\n\n\nHello world.\n" {
		t.Errorf("Read() = %q", data)
	}

	if data, err := g.Read(ctx, "missing.md"); err != nil || data != nil {
		t.Errorf("Read() of missing file = %q, %v; want nil, nil", data, err)
	}

	if err := g.Write(ctx, "blog.md", []byte("updated\n")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if files["blog.md"] != "updated\n" {
		t.Errorf("server content after Write() = %q", files["blog.md"])
	}

	mod, err := g.LastModified(ctx, "blog.md")
	if err != nil {
		t.Fatalf("LastModified() failed: %v", err)
	}
	if !mod.Equal(updated) {
		t.Errorf("LastModified() = %v, want %v", mod, updated)
	}
}

func TestGist_MissingGist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	g := NewGist(Options{GistAPIBase: srv.URL, GistID: "gone"})
	data, err := g.Read(context.Background(), "blog.md")
	if err != nil {
		t.Fatalf("Read() of missing gist errored: %v", err)
	}
	if data != nil {
		t.Errorf("Read() of missing gist = %q, want nil", data)
	}
}
