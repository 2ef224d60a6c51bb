// Package document implements the post-document wire format: a plain-text
// serialization of an ordered collection of posts, and the parser/renderer
// pair that round-trips it.
//
// The canonical form fences each entry's metadata block:
//
//	---
//	publish: 2012-01-01 09:00 AM -0500
//	stardate: 352b967d-87bf-11e2-81f3-b88d120c8298
//	title: First post
//	---
//
//	Body text here.
//
// Entries are joined with Delimiter. Two older variants are still accepted
// on read: an unfenced metadata block separated from the body by a blank
// double-newline, and documents joined with a bare "\n---\n".
package document

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/blturner/stardate/internal/post"
)

// Delimiter separates entries in an aggregate document.
const Delimiter = "\n\n==========\n\n"

// legacyDelimiter is the outer separator used by pre-fence documents.
const legacyDelimiter = "\n---\n"

// knownKeys are the metadata keys with schema meaning. Anything else is an
// extension key and passes through verbatim.
var knownKeys = map[string]bool{
	"title":    true,
	"slug":     true,
	"stardate": true,
	"publish":  true,
	"timezone": true,
	"created":  true,
	"deleted":  true,
}

// Codec parses and renders post documents. The zero value is not usable;
// construct with New.
type Codec struct {
	log zerolog.Logger
}

// New returns a Codec that reports malformed entries to logger at warn
// level. Malformed entries are dropped, never fatal.
func New(logger zerolog.Logger) *Codec {
	return &Codec{log: logger}
}

// Unpack splits a document into posts. An empty document yields an empty
// slice. Entries that cannot be parsed are logged and skipped so one
// corrupt entry never aborts the whole document.
func (c *Codec) Unpack(raw string) []post.Post {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	chunks := c.split(raw)
	posts := make([]post.Post, 0, len(chunks))
	for i, chunk := range chunks {
		p, err := c.Parse(chunk)
		if err != nil {
			c.log.Warn().Int("entry", i).Err(err).Msg("dropping malformed document entry")
			continue
		}
		posts = append(posts, p)
	}
	return posts
}

// Pack renders posts into a single document, the inverse of Unpack. Entry
// order is preserved for stable diffs.
func (c *Codec) Pack(posts []post.Post) string {
	entries := make([]string, 0, len(posts))
	for _, p := range posts {
		entries = append(entries, c.Render(p))
	}
	return strings.Join(entries, Delimiter)
}

// split carves a document into per-entry chunks, handling both the
// canonical delimiter and the legacy bare separator. Fenced documents are
// never split on the legacy separator: their fences contain it.
func (c *Codec) split(raw string) []string {
	if strings.Contains(raw, Delimiter) {
		return strings.Split(raw, Delimiter)
	}
	if strings.HasPrefix(strings.TrimLeft(raw, "\n"), "---\n") {
		return []string{raw}
	}
	return strings.Split(raw, legacyDelimiter)
}

// Parse decodes a single entry into a post. The body is kept verbatim;
// trailing-newline normalization is the record's concern at save time, not
// the codec's.
func (c *Codec) Parse(raw string) (post.Post, error) {
	raw = strings.TrimLeft(raw, "\n")
	if strings.TrimSpace(raw) == "" {
		return post.Post{}, fmt.Errorf("empty entry")
	}

	meta, body, err := splitEntry(raw)
	if err != nil {
		return post.Post{}, err
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(meta), &fields); err != nil {
		return post.Post{}, fmt.Errorf("unparsable metadata block: %w", err)
	}
	if len(fields) == 0 {
		return post.Post{}, fmt.Errorf("no metadata found")
	}

	p := post.Post{Body: body}

	// Timezone first: it is the hint for every date field in the entry.
	if tz, ok := fields["timezone"]; ok {
		p.Timezone = scalar(tz)
	}

	for key, value := range fields {
		switch key {
		case "title":
			p.Title = scalar(value)
		case "slug":
			p.Slug = scalar(value)
		case "stardate":
			p.Stardate = scalar(value)
		case "timezone":
			// handled above
		case "publish":
			t, err := c.parseDate(value, p.Timezone)
			if err != nil {
				return post.Post{}, fmt.Errorf("publish: %w", err)
			}
			p.Publish = &t
		case "created":
			t, err := c.parseDate(value, p.Timezone)
			if err != nil {
				return post.Post{}, fmt.Errorf("created: %w", err)
			}
			p.Created = t
		case "deleted":
			p.Deleted = truthy(value)
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[key] = scalar(value)
		}
	}

	if p.Title == "" && p.Stardate == "" {
		return post.Post{}, fmt.Errorf("entry has neither title nor stardate")
	}
	return p, nil
}

// Render encodes a single post as one entry in the canonical fenced form.
// Metadata keys are emitted in sorted order so output is deterministic and
// diff-friendly; empty fields are omitted.
func (c *Codec) Render(p post.Post) string {
	meta := map[string]string{}

	setIfPresent := func(key, value string) {
		if value != "" {
			meta[key] = value
		}
	}
	setIfPresent("title", p.Title)
	setIfPresent("slug", p.Slug)
	setIfPresent("stardate", p.Stardate)
	setIfPresent("timezone", p.Timezone)
	if p.Publish != nil {
		meta["publish"] = RenderPublish(*p.Publish, p.Timezone)
	}
	if !p.Created.IsZero() {
		meta["created"] = RenderPublish(p.Created, p.Timezone)
	}
	if p.Deleted {
		meta["deleted"] = "true"
	}
	for key, value := range p.Extra {
		if !knownKeys[key] {
			meta[key] = value
		}
	}

	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("---\n")
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(quoteValue(meta[key]))
		b.WriteString("\n")
	}
	b.WriteString("---\n\n\n")
	b.WriteString(p.Body)
	return b.String()
}

// splitEntry separates the metadata block from the body. Fenced entries
// close the block with "\n---\n"; unfenced legacy entries separate it from
// the body with a double blank line.
func splitEntry(raw string) (meta, body string, err error) {
	if rest, ok := strings.CutPrefix(raw, "---\n"); ok {
		meta, body, ok = strings.Cut(rest, "\n---\n")
		if !ok {
			return "", "", fmt.Errorf("unterminated metadata fence")
		}
		// The canonical form puts two blank lines between the fence
		// and the body.
		if after, ok := strings.CutPrefix(body, "\n\n"); ok {
			body = after
		} else {
			body = strings.TrimPrefix(body, "\n")
		}
		return meta, body, nil
	}

	meta, body, ok := strings.Cut(raw, "\n\n\n")
	if !ok {
		return "", "", fmt.Errorf("no metadata/body separator")
	}
	return meta, body, nil
}

// parseDate accepts the scalar forms the YAML decoder may hand us: a string
// in the wire grammar, or an already-decoded timestamp for ISO-style values.
func (c *Codec) parseDate(value any, timezone string) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		if v.Location() == time.UTC && timezone != "" {
			// The decoder reads bare dates as UTC; reinterpret the
			// wall clock in the hinted zone.
			if loc, err := LoadZone(timezone); err == nil {
				return attachZone(v, loc), nil
			}
		}
		return v, nil
	default:
		return ParsePublish(scalar(value), timezone)
	}
}

func scalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	default:
		return false
	}
}

// quoteValue protects values that YAML would otherwise misread, so a title
// like "Notes: part two" survives the round trip. Go's quoting rules are
// compatible with YAML double-quoted scalars for the escapes we emit.
func quoteValue(v string) string {
	if v == "" {
		return `""`
	}
	if strings.Contains(v, ": ") || strings.ContainsAny(v, "\n\"'#") ||
		strings.ContainsAny(v[:1], "-?[]{}&*!|>%@` \t") ||
		strings.HasSuffix(v, " ") || strings.HasSuffix(v, ":") {
		return strconv.Quote(v)
	}
	return v
}
