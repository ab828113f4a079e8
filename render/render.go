// Package render turns assistant Markdown into the markup each surface
// understands.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML renders Markdown to HTML for the web widget. Raw HTML in the input is
// omitted.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Telegram renders Markdown into the HTML subset accepted by the Telegram Bot
// API. Headings become bold lines, lists use bullets and tables become one
// line per row.
func Telegram(md string) string {
	source := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(source))

	t := &tgWriter{source: source}
	_ = ast.Walk(doc, t.visit)
	return strings.TrimRight(t.buf.String(), "\n ")
}

type tgWriter struct {
	source []byte
	buf    strings.Builder
}

func (t *tgWriter) esc(b []byte) {
	t.buf.WriteString(html.EscapeString(string(b)))
}

func (t *tgWriter) trimNewlines() {
	s := strings.TrimRight(t.buf.String(), "\n")
	t.buf.Reset()
	t.buf.WriteString(s)
}

func (t *tgWriter) lines(n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		t.esc(seg.Value(t.source))
	}
}

func (t *tgWriter) visit(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Heading:
		if entering {
			t.buf.WriteString("<b>")
		} else {
			t.buf.WriteString("</b>\n\n")
		}

	case *ast.Paragraph:
		if !entering {
			if _, inItem := n.Parent().(*ast.ListItem); inItem {
				t.buf.WriteByte('\n')
			} else {
				t.buf.WriteString("\n\n")
			}
		}

	case *ast.TextBlock:
		if !entering {
			t.buf.WriteByte('\n')
		}

	case *ast.List:
		if !entering && listDepth(n) == 0 {
			t.buf.WriteByte('\n')
		}

	case *ast.ListItem:
		if entering {
			t.buf.WriteString(listPrefix(n))
		}

	case *ast.Blockquote:
		if entering {
			t.buf.WriteString("<blockquote>")
		} else {
			t.trimNewlines()
			t.buf.WriteString("</blockquote>\n\n")
		}

	case *ast.FencedCodeBlock:
		if !entering {
			return ast.WalkContinue, nil
		}
		if lang := n.Language(t.source); len(lang) > 0 {
			fmt.Fprintf(&t.buf, "<pre><code class=\"language-%s\">", html.EscapeString(string(lang)))
		} else {
			t.buf.WriteString("<pre><code>")
		}
		t.lines(n)
		t.buf.WriteString("</code></pre>\n\n")
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if !entering {
			return ast.WalkContinue, nil
		}
		t.buf.WriteString("<pre><code>")
		t.lines(n)
		t.buf.WriteString("</code></pre>\n\n")
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		if !entering {
			return ast.WalkContinue, nil
		}
		t.lines(n)
		t.buf.WriteByte('\n')
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			t.buf.WriteString("——————————\n\n")
		}

	case *ast.Text:
		if entering {
			t.esc(n.Segment.Value(t.source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				t.buf.WriteByte('\n')
			}
		}

	case *ast.String:
		if entering {
			t.esc(n.Value)
		}

	case *ast.Emphasis:
		tag := "i"
		if n.Level == 2 {
			tag = "b"
		}
		if entering {
			t.buf.WriteString("<" + tag + ">")
		} else {
			t.buf.WriteString("</" + tag + ">")
		}

	case *ast.CodeSpan:
		if !entering {
			return ast.WalkContinue, nil
		}
		t.buf.WriteString("<code>")
		t.buf.WriteString(html.EscapeString(plainText(n, t.source)))
		t.buf.WriteString("</code>")
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if entering {
			fmt.Fprintf(&t.buf, "<a href=\"%s\">", html.EscapeString(string(n.Destination)))
		} else {
			t.buf.WriteString("</a>")
		}

	case *ast.AutoLink:
		if !entering {
			return ast.WalkContinue, nil
		}
		url := html.EscapeString(string(n.URL(t.source)))
		fmt.Fprintf(&t.buf, "<a href=\"%s\">%s</a>", url, html.EscapeString(string(n.Label(t.source))))
		return ast.WalkSkipChildren, nil

	case *ast.Image:
		if !entering {
			return ast.WalkContinue, nil
		}
		alt := plainText(n, t.source)
		if alt == "" {
			alt = string(n.Destination)
		}
		fmt.Fprintf(&t.buf, "<a href=\"%s\">%s</a>", html.EscapeString(string(n.Destination)), html.EscapeString(alt))
		return ast.WalkSkipChildren, nil

	case *ast.RawHTML:
		if !entering {
			return ast.WalkContinue, nil
		}
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			t.esc(seg.Value(t.source))
		}
		return ast.WalkSkipChildren, nil

	case *east.Strikethrough:
		if entering {
			t.buf.WriteString("<s>")
		} else {
			t.buf.WriteString("</s>")
		}

	case *east.TaskCheckBox:
		if entering {
			if n.IsChecked {
				t.buf.WriteString("✅ ")
			} else {
				t.buf.WriteString("☐ ")
			}
		}

	case *east.Table:
		if !entering {
			return ast.WalkContinue, nil
		}
		t.table(n)
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (t *tgWriter) table(tbl *east.Table) {
	for row := tbl.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, html.EscapeString(strings.TrimSpace(plainText(cell, t.source))))
		}
		line := strings.Join(cells, " | ")
		if _, header := row.(*east.TableHeader); header {
			line = "<b>" + line + "</b>"
		}
		t.buf.WriteString(line)
		t.buf.WriteByte('\n')
	}
	t.buf.WriteByte('\n')
}

func listDepth(n ast.Node) int {
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.List); ok {
			depth++
		}
	}
	return depth
}

func listPrefix(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok {
		return ""
	}
	indent := strings.Repeat("  ", listDepth(list))
	if !list.IsOrdered() {
		return indent + "• "
	}
	idx := list.Start
	if idx == 0 {
		idx = 1
	}
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		idx++
	}
	return fmt.Sprintf("%s%d. ", indent, idx)
}

// plainText concatenates the text leaves below n.
func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
