// Package markdown locates fenced code blocks in model output.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// CodeBlock is a fenced block found in a markdown document.
type CodeBlock struct {
	Language string
	Body     string
}

// FencedBlocks returns every fenced code block in document order.
func FencedBlocks(src string) []CodeBlock {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	var blocks []CodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var sb strings.Builder
		lines := fcb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(source))
		}
		blocks = append(blocks, CodeBlock{
			Language: string(fcb.Language(source)),
			Body:     sb.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// FirstFenced returns the body of the first fenced block, if any.
func FirstFenced(src string) (string, bool) {
	blocks := FencedBlocks(src)
	if len(blocks) == 0 {
		return "", false
	}
	return blocks[0].Body, true
}
