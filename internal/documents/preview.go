package documents

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// PreviewHTML converts d to an HTML fragment through its Markdown form.
// Raw HTML in content is escaped, not passed through.
func PreviewHTML(d *Doc) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(d)), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}
