package source

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock represents a fenced code block from markdown content.
type CodeBlock struct {
	// Lang is the info string of the fence (e.g., "xml").
	Lang string
	// Content is the raw text inside the block.
	Content string
}

// ExtractCodeBlocks uses a markdown AST to find all fenced code blocks.
func ExtractCodeBlocks(source []byte) ([]CodeBlock, error) {
	var blocks []CodeBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var block CodeBlock
		if fenced.Info != nil {
			block.Lang = strings.TrimSpace(string(fenced.Info.Text(source)))
		}
		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
		}
		block.Content = content.String()

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}
	return blocks, nil
}

// ExtractDocument returns the change-set document inside content. A bare
// XML document is returned unchanged; a chat response is reduced to the
// first fenced block that holds <file> entries.
func ExtractDocument(content string) string {
	if strings.HasPrefix(strings.TrimSpace(content), "<") || !strings.Contains(content, "```") {
		return content
	}
	blocks, err := ExtractCodeBlocks([]byte(content))
	if err != nil {
		return content
	}
	for _, b := range blocks {
		if strings.Contains(b.Content, "<file>") || (b.Lang == "xml" && strings.Contains(b.Content, "<changed_files>")) {
			return b.Content
		}
	}
	return content
}
