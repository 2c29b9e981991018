package snapshot

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/seatwatch/api/schemas"
)

// htmlElement is a static Element over a parsed document. It never goes stale.
type htmlElement struct {
	node *html.Node
}

// ParseHTML parses a saved page and returns its document root as an Element.
func ParseHTML(r io.Reader) (schemas.Element, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return NewHTMLElement(doc), nil
}

// NewHTMLElement wraps an already parsed node.
func NewHTMLElement(n *html.Node) schemas.Element {
	return &htmlElement{node: n}
}

// Find matches descendants with a CSS selector. An invalid selector matches
// nothing. Groups anchored with ":scope" are relative to this element, as with
// querySelectorAll on a live element.
func (e *htmlElement) Find(ctx context.Context, selector string) ([]schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := goquery.NewDocumentFromNode(e.node).Selection
	var nodes []*html.Node
	if strings.Contains(selector, scopePseudo) {
		nodes = findScoped(root, selector)
	} else {
		nodes = root.Find(selector).Nodes
	}
	out := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &htmlElement{node: n})
	}
	return out, nil
}

const scopePseudo = ":scope"

// findScoped evaluates a selector list whose groups may start with ":scope".
// After the anchor only child combinators are understood; any other anchored
// form matches nothing. Results come back in document order.
func findScoped(root *goquery.Selection, selector string) []*html.Node {
	matched := make(map[*html.Node]bool)
	for _, group := range strings.Split(selector, ",") {
		group = strings.TrimSpace(group)
		rest, anchored := strings.CutPrefix(group, scopePseudo)
		if !anchored {
			for _, n := range root.Find(group).Nodes {
				matched[n] = true
			}
			continue
		}
		for _, n := range scopedChildren(root, rest) {
			matched[n] = true
		}
	}

	var out []*html.Node
	for _, n := range root.Find("*").Nodes {
		if matched[n] {
			out = append(out, n)
		}
	}
	return out
}

// scopedChildren follows a "> a > b" chain of child steps from root.
func scopedChildren(root *goquery.Selection, chain string) []*html.Node {
	steps := strings.Split(chain, ">")
	if len(steps) < 2 || strings.TrimSpace(steps[0]) != "" {
		return nil
	}
	sel := root
	for _, step := range steps[1:] {
		step = strings.TrimSpace(step)
		if step == "" {
			return nil
		}
		sel = sel.ChildrenFiltered(step)
	}
	return sel.Nodes
}

func (e *htmlElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	renderText(&b, e.node)
	return normalizeLines(b.String()), nil
}

func (e *htmlElement) Attr(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := attr(e.node, name)
	return v, ok, nil
}

// Visible walks the node and its ancestors looking for the hidden attribute or
// an inline display:none.
func (e *htmlElement) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if _, ok := attr(n, "hidden"); ok {
			return false, nil
		}
		if style, ok := attr(n, "style"); ok && hidesDisplay(style) {
			return false, nil
		}
	}
	return true, nil
}

func (e *htmlElement) String() string {
	n := e.node
	if n.Type == html.DocumentNode {
		return "#document"
	}
	if n.Type != html.ElementNode {
		return "#text"
	}
	desc := n.Data
	if id, ok := attr(n, "id"); ok && id != "" {
		desc += "#" + id
	}
	if class, ok := attr(n, "class"); ok {
		for _, c := range strings.Fields(class) {
			desc += "." + c
		}
	}
	return desc
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func hidesDisplay(style string) bool {
	compact := strings.ToLower(strings.Join(strings.Fields(style), ""))
	for _, decl := range strings.Split(compact, ";") {
		if decl == "display:none" || strings.HasPrefix(decl, "display:none!") {
			return true
		}
	}
	return false
}

// -- Text rendering --

// blockAtoms break lines before and after their content, approximating how a
// browser lays out innerText.
var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Tbody: true, atom.Thead: true, atom.Tfoot: true, atom.Tr: true, atom.Ul: true,
}

func renderText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		case atom.Br:
			b.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

// normalizeLines collapses whitespace within each line and drops blank lines.
func normalizeLines(raw string) string {
	lines := strings.Split(raw, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
