package storage

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/tessera-kb/tessera/internal/models"
)

// markdown is the shared goldmark instance. Parsing only, no rendering.
var markdown = goldmark.New()

// ExtractLinks walks the Markdown AST once and classifies every link by
// its target: http(s) schemes are external, attachment:/file: prefixes are
// attachments, everything else is internal. Purely a function of body text.
func (s *Storage) ExtractLinks(body string) []models.Link {
	source := []byte(body)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var links []models.Link
	position := 0

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			dest := string(node.Destination)
			links = append(links, models.Link{
				Type:     classifyLink(dest),
				Target:   normalizeTarget(dest),
				Text:     nodeText(node, source),
				Position: position,
			})
			position++
		case *ast.AutoLink:
			dest := string(node.URL(source))
			links = append(links, models.Link{
				Type:     models.LinkExternal,
				Target:   dest,
				Text:     dest,
				Position: position,
			})
			position++
		}
		return ast.WalkContinue, nil
	})

	return links
}

func classifyLink(dest string) models.LinkType {
	switch {
	case strings.HasPrefix(dest, "http://"), strings.HasPrefix(dest, "https://"):
		return models.LinkExternal
	case strings.HasPrefix(dest, "attachment:"), strings.HasPrefix(dest, "file:"):
		return models.LinkAttachment
	default:
		return models.LinkInternal
	}
}

// normalizeTarget reduces internal targets to a note id: fragment and note
// extension stripped, directory prefix removed. External and attachment
// targets pass through unchanged.
func normalizeTarget(dest string) string {
	if classifyLink(dest) != models.LinkInternal {
		return dest
	}
	if i := strings.IndexByte(dest, '#'); i >= 0 {
		dest = dest[:i]
	}
	dest = strings.TrimSuffix(strings.TrimSuffix(dest, ".md"), ".markdown")
	if i := strings.LastIndexByte(dest, '/'); i >= 0 {
		dest = dest[i+1:]
	}
	return dest
}

// firstHeading returns the text of the first heading in body, or "".
func firstHeading(body string) string {
	source := []byte(body)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if _, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(nodeText(n, source))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// nodeText concatenates the text segments beneath n.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
