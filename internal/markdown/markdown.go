// Package markdown flattens a goldmark AST into the handful of block shapes
// forge reads out of hand-written documents: headings, paragraph lines and
// list items.
package markdown

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parserInstance
}

// Kind identifies a flattened block.
type Kind int

const (
	KindHeading Kind = iota + 1
	KindParagraph
	KindListItem
)

// Task reports the checkbox state of a list item.
type Task int

const (
	TaskNone Task = iota
	TaskOpen
	TaskDone
)

// Block is one flattened markdown block.
type Block struct {
	Kind Kind
	// Level is the heading level for headings and the nesting depth
	// (starting at 1) for list items.
	Level int
	// Text is the inline text with soft line breaks folded to spaces.
	Text string
	// Lines keeps paragraph text split at the source line breaks.
	Lines []string
	Task  Task
	// Line is the 1-based source line the block starts on.
	Line int
}

// Blocks parses source and returns its blocks in document order. Code blocks,
// HTML and tables are skipped.
func Blocks(source []byte) []Block {
	source = bytes.ReplaceAll(source, []byte("\r\n"), []byte("\n"))
	doc := parser().Parser().Parse(text.NewReader(source))
	f := &flattener{source: source}
	_ = ast.Walk(doc, f.walk)
	return f.blocks
}

type flattener struct {
	source    []byte
	blocks    []Block
	listDepth int
}

func (f *flattener) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Heading:
		if entering {
			f.blocks = append(f.blocks, Block{
				Kind:  KindHeading,
				Level: n.Level,
				Text:  fold(f.inline(n)),
				Line:  f.line(n),
			})
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			f.listDepth++
		} else {
			f.listDepth--
		}
	case *ast.ListItem:
		if entering {
			f.blocks = append(f.blocks, f.listItem(n))
		}
	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			if _, inItem := node.Parent().(*ast.ListItem); !inItem {
				raw := f.inline(node)
				f.blocks = append(f.blocks, Block{
					Kind:  KindParagraph,
					Text:  fold(raw),
					Lines: splitLines(raw),
					Line:  f.line(node),
				})
			}
		}
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *extast.Table:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (f *flattener) listItem(item *ast.ListItem) Block {
	block := Block{Kind: KindListItem, Level: f.listDepth, Line: f.line(item)}
	var parts []string
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			if block.Task == TaskNone {
				block.Task = taskState(child)
			}
			if value := fold(f.inline(child)); value != "" {
				parts = append(parts, value)
			}
		}
	}
	block.Text = strings.Join(parts, " ")
	return block
}

func taskState(node ast.Node) Task {
	if box, ok := node.FirstChild().(*extast.TaskCheckBox); ok {
		if box.IsChecked {
			return TaskDone
		}
		return TaskOpen
	}
	return TaskNone
}

// inline renders the plain text of node's inline children. Soft line breaks
// become newlines so callers can split paragraphs back into source lines.
func (f *flattener) inline(node ast.Node) string {
	var b strings.Builder
	var visit func(ast.Node)
	visit = func(n ast.Node) {
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			switch c := child.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(f.source))
				if c.SoftLineBreak() || c.HardLineBreak() {
					b.WriteByte('\n')
				}
			case *ast.String:
				b.Write(c.Value)
			case *ast.AutoLink:
				b.Write(c.Label(f.source))
			case *extast.TaskCheckBox:
			case *ast.RawHTML:
			default:
				visit(child)
			}
		}
	}
	visit(node)
	return b.String()
}

func (f *flattener) line(node ast.Node) int {
	start := -1
	if lines := node.Lines(); lines != nil && lines.Len() > 0 {
		start = lines.At(0).Start
	} else if child := node.FirstChild(); child != nil {
		if lines := child.Lines(); lines != nil && lines.Len() > 0 {
			start = lines.At(0).Start
		}
	}
	if start < 0 || start > len(f.source) {
		return 0
	}
	return bytes.Count(f.source[:start], []byte("\n")) + 1
}

func fold(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func splitLines(value string) []string {
	var out []string
	for _, line := range strings.Split(value, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
