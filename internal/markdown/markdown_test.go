package markdown_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/markdown"
)

func TestParseFrontmatterTitleAndSections(t *testing.T) {
	raw := "---\nform: note\ntags: [a, b]\n---\n# My Title\n\n## body\nhello\nworld\n\n## priority\n1\n"
	doc, err := markdown.Parse(raw, "fallback")
	require.NoError(t, err)
	require.Equal(t, "note", doc.Frontmatter["form"])
	require.Equal(t, "My Title", doc.Title)
	require.Len(t, doc.Sections, 2)
	require.Equal(t, "body", doc.Sections[0].Name)
	require.Equal(t, "hello\nworld", doc.Sections[0].Body)
	require.Equal(t, "priority", doc.Sections[1].Name)
}

func TestParseWithoutFrontmatterUsesFallbackTitle(t *testing.T) {
	doc, err := markdown.Parse("no frontmatter here\n\n## body\nhi\n", "fallback-id")
	require.NoError(t, err)
	require.Equal(t, "fallback-id", doc.Title)
	require.Len(t, doc.Sections, 1)
}

func TestNormalizeLinksCanonicalizesKindsAndQueryForm(t *testing.T) {
	in := "see ugoite://entries/abc and ugoite://assets/xyz?id=qqq&x=1"
	out := markdown.NormalizeLinks(in)
	require.Equal(t, "see ugoite://entry/abc and ugoite://asset/qqq", out)
}

func TestRenderRoundTrip(t *testing.T) {
	out, err := markdown.Render("note", "Hello", []string{"a", "b"}, []markdown.Section{
		{Name: "body", Body: "content here"},
	})
	require.NoError(t, err)

	doc, err := markdown.Parse(out, "fallback")
	require.NoError(t, err)
	require.Equal(t, "note", doc.Frontmatter["form"])
	require.Equal(t, "Hello", doc.Title)
	require.Len(t, doc.Sections, 1)
	require.Equal(t, "content here", doc.Sections[0].Body)
}
