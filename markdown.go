package poe

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainText strips markdown markup from a text/markdown message body,
// returning a control-sequence-free rendering suitable for an operational
// log line or a fixed-width terminal preview. Grounded in the teacher's
// go.mod markdown-rendering stack (glamour/chroma) — this runtime uses
// goldmark directly for the narrower "extract plain text" operation those
// heavier renderers don't expose on their own.
func PlainText(markdown string) string {
	src := []byte(markdown)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Text:
			segment := n.(*ast.Text).Segment
			sb.Write(segment.Value(src))
			if n.(*ast.Text).SoftLineBreak() || n.(*ast.Text).HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.CodeSpan, *ast.FencedCodeBlock, *ast.CodeBlock:
			// fall through to their child Text nodes, which are walked
			// separately; nothing to append here directly.
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
