// Package preview renders a rewritten document to a standalone HTML page so
// the substituted images can be checked in a browser.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdhtml "html"
	"path/filepath"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/alnah/go-latex2img/internal/fileutil"
)

// ErrHTMLConversion indicates HTML conversion failed.
var ErrHTMLConversion = errors.New("HTML conversion failed")

// Extension is the suffix of preview files.
const Extension = ".html"

// highlightStyle colors the provenance fences.
const highlightStyle = "github"

// pageTemplate wraps goldmark's fragment output in a complete HTML5 document.
const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
img { max-width: 100%%; vertical-align: middle; }
%s</style>
</head>
<body>
%s
</body>
</html>
`

// Converter converts Markdown to an HTML page using goldmark.
type Converter struct {
	md  goldmark.Markdown
	css string
}

// NewConverter creates a Converter with GFM extensions and class-based
// syntax highlighting. The stylesheet for the classes is embedded in each page.
func NewConverter() *Converter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(highlightStyle),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)
	return &Converter{md: md, css: stylesheet()}
}

// stylesheet returns the chroma CSS for highlightStyle, or "" if it cannot be produced.
func stylesheet() string {
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, styles.Get(highlightStyle)); err != nil {
		return ""
	}
	return buf.String()
}

// ToHTML converts Markdown content to a standalone HTML5 document.
// Goldmark has no context support, so conversion runs in a goroutine and
// the call returns early on cancellation.
func (c *Converter) ToHTML(ctx context.Context, title, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(content), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, err)}
			return
		}
		done <- result{html: fmt.Sprintf(pageTemplate, stdhtml.EscapeString(title), c.css, buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}

// PathFor returns the preview path for a document: same directory, same
// base name, Extension as suffix.
func PathFor(docPath string) string {
	return strings.TrimSuffix(docPath, filepath.Ext(docPath)) + Extension
}

// WriteFile converts content and writes the page next to docPath.
// Returns the path written.
func (c *Converter) WriteFile(ctx context.Context, docPath, content string) (string, error) {
	page, err := c.ToHTML(ctx, filepath.Base(docPath), content)
	if err != nil {
		return "", err
	}
	out := PathFor(docPath)
	if err := fileutil.WriteFileAtomic(out, []byte(page), fileutil.FilePermissions); err != nil {
		return "", fmt.Errorf("writing preview: %w", err)
	}
	return out, nil
}
