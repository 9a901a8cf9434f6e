// Package mrkdwn converts Markdown, as produced by chat models, into Slack's
// mrkdwn dialect.
package mrkdwn

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Convert renders markdown as Slack mrkdwn. Text that uses no Markdown
// syntax comes back unchanged apart from Slack's &, < and > escaping.
func Convert(markdown string) string {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))
	r := &renderer{src: src}
	return strings.TrimRight(r.blocks(doc, "\n\n"), "\n")
}

type renderer struct {
	src []byte
}

// blocks renders the block children of n joined by sep.
func (r *renderer) blocks(n ast.Node, sep string) string {
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if s := r.block(c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func (r *renderer) block(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return r.inlines(n)
	case *ast.Heading:
		return "*" + r.inlines(n) + "*"
	case *ast.ThematicBreak:
		return "───"
	case *ast.FencedCodeBlock:
		return "```\n" + r.lines(n) + "```"
	case *ast.CodeBlock:
		return "```\n" + r.lines(n) + "```"
	case *ast.HTMLBlock:
		return strings.TrimRight(escaper.Replace(r.lines(n)), "\n")
	case *ast.Blockquote:
		return prefixLines(r.blocks(n, "\n\n"), "> ")
	case *ast.List:
		return r.list(n)
	case *east.Table:
		return r.table(n)
	default:
		if n.HasChildren() && n.FirstChild().Type() == ast.TypeBlock {
			return r.blocks(n, "\n\n")
		}
		return r.inlines(n)
	}
}

func (r *renderer) list(n *ast.List) string {
	var items []string
	i := 0
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		marker := "•"
		if n.IsOrdered() {
			marker = fmt.Sprintf("%d.", n.Start+i)
		}
		body := r.blocks(c, "\n")
		items = append(items, marker+" "+indentContinuation(body, strings.Repeat(" ", len(marker)+1)))
		i++
	}
	return strings.Join(items, "\n")
}

func (r *renderer) table(n *east.Table) string {
	var rows []string
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, r.inlines(cell))
		}
		line := strings.Join(cells, " | ")
		if _, ok := row.(*east.TableHeader); ok {
			line = "*" + line + "*"
		}
		rows = append(rows, line)
	}
	return strings.Join(rows, "\n")
}

func (r *renderer) lines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(r.src))
	}
	return b.String()
}

// inlines renders the inline children of n.
func (r *renderer) inlines(n ast.Node) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		b.WriteString(r.inline(c))
	}
	return b.String()
}

func (r *renderer) inline(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Text:
		s := escaper.Replace(string(n.Segment.Value(r.src)))
		if n.SoftLineBreak() || n.HardLineBreak() {
			s += "\n"
		}
		return s
	case *ast.String:
		return escaper.Replace(string(n.Value))
	case *ast.Emphasis:
		if n.Level >= 2 {
			return "*" + r.inlines(n) + "*"
		}
		return "_" + r.inlines(n) + "_"
	case *east.Strikethrough:
		return "~" + r.inlines(n) + "~"
	case *ast.CodeSpan:
		return "`" + r.inlines(n) + "`"
	case *ast.Link:
		return link(string(n.Destination), r.inlines(n))
	case *ast.Image:
		return link(string(n.Destination), r.inlines(n))
	case *ast.AutoLink:
		return "<" + string(n.URL(r.src)) + ">"
	case *ast.RawHTML:
		var b strings.Builder
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(r.src))
		}
		return escaper.Replace(b.String())
	case *east.TaskCheckBox:
		if n.IsChecked {
			return "☑ "
		}
		return "☐ "
	default:
		return r.inlines(n)
	}
}

func link(dest, label string) string {
	if label == "" || label == dest {
		return "<" + dest + ">"
	}
	return "<" + dest + "|" + label + ">"
}

func prefixLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func indentContinuation(s, indent string) string {
	return strings.ReplaceAll(s, "\n", "\n"+indent)
}
