// Package markdown implements the entry markdown round-trip:
// YAML frontmatter, title heading, `##` field sections,
// and ugoite:// link canonicalization.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Section is one `## Name` block of an entry's body.
type Section struct {
	Name string
	Body string
}

// Document is a fully parsed entry markdown source.
type Document struct {
	Frontmatter map[string]any
	Title       string
	Sections    []Section
}

var frontmatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n?`)

// Parse splits raw markdown into frontmatter, title, and ordered sections.
func Parse(raw string, fallbackTitle string) (Document, error) {
	doc := Document{Frontmatter: map[string]any{}}

	body := raw
	if m := frontmatterRe.FindStringSubmatch(raw); m != nil {
		if err := yaml.Unmarshal([]byte(m[1]), &doc.Frontmatter); err != nil {
			return doc, fmt.Errorf("parse frontmatter: %w", err)
		}
		if doc.Frontmatter == nil {
			doc.Frontmatter = map[string]any{}
		}
		body = raw[len(m[0]):]
	}

	lines := strings.Split(body, "\n")
	doc.Title = fallbackTitle

	i := 0
	foundTitle := false
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "# ") && !strings.HasPrefix(trimmed, "## ") {
			doc.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			i++
			foundTitle = true
			break
		}
		i++
	}
	if !foundTitle {
		// No title heading: sections are read from the top of the body.
		i = 0
	}

	var cur *Section
	var curLines []string
	flush := func() {
		if cur != nil {
			cur.Body = strings.TrimSpace(strings.Join(curLines, "\n"))
			doc.Sections = append(doc.Sections, *cur)
		}
		cur = nil
		curLines = nil
	}
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "## ") {
			flush()
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			cur = &Section{Name: name}
			continue
		}
		if strings.HasPrefix(trimmed, "#") && cur != nil {
			flush()
			continue
		}
		if cur != nil {
			curLines = append(curLines, line)
		}
	}
	flush()

	return doc, nil
}

var ugoiteLinkRe = regexp.MustCompile(`ugoite://([a-zA-Z0-9_]+)[/?]([^\s)\]"']+)`)

// NormalizeLinks canonicalizes every ugoite:// URI in text: `entries` ->
// `entry`, `assets` -> `asset`, and rewrites the `?id=` query form into the
// path form. Both `ugoite://entries?id=x` and
// `ugoite://entries/?id=x` collapse to `ugoite://entry/x`.
func NormalizeLinks(text string) string {
	return ugoiteLinkRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := ugoiteLinkRe.FindStringSubmatch(match)
		kind, rest := sub[1], sub[2]
		kind = canonicalKind(kind)

		if idx := strings.Index(rest, "id="); idx >= 0 && (idx == 0 || rest[idx-1] == '?') {
			id := rest[idx+len("id="):]
			if amp := strings.IndexByte(id, '&'); amp >= 0 {
				id = id[:amp]
			}
			rest = id
		}
		return fmt.Sprintf("ugoite://%s/%s", kind, rest)
	})
}

func canonicalKind(kind string) string {
	switch kind {
	case "entries":
		return "entry"
	case "assets":
		return "asset"
	default:
		return kind
	}
}

// Render re-serializes title, form, tags and ordered sections into the
// canonical markdown shape.
func Render(form, title string, tags []string, sections []Section) (string, error) {
	var b strings.Builder

	fm := map[string]any{"form": form}
	if len(tags) > 0 {
		fm["tags"] = tags
	}
	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", err
	}
	b.WriteString("---\n")
	b.Write(fmBytes)
	b.WriteString("---\n")
	fmt.Fprintf(&b, "# %s\n", title)

	for _, s := range sections {
		fmt.Fprintf(&b, "\n## %s\n%s\n", s.Name, s.Body)
	}
	return b.String(), nil
}
