package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is an in-memory rendered page.
// All reads and writes go through mu, so a Document may be inspected from
// outside the event loop while behaviors mutate it.
type Document struct {
	mu   sync.RWMutex
	root *html.Node
}

var _ Page = (*Document)(nil)

// Parse reads a rendered page.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses a rendered page held in memory.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render writes the current tree as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// String renders the current tree.
func (d *Document) String() string {
	var sb strings.Builder
	if err := d.Render(&sb); err != nil {
		return ""
	}
	return sb.String()
}

// Query returns every element matching selector, in document order.
func (d *Document) Query(selector string) ([]Element, error) {
	return d.query(d.root, selector, false)
}

// QueryOne returns the first element matching selector.
func (d *Document) QueryOne(selector string) (Element, error) {
	found, err := d.Query(selector)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return found[0], nil
}

// ByID returns the element whose id attribute equals id.
func (d *Document) ByID(id string) (Element, error) {
	found, err := d.query(d.root, "//*[@id="+literal(id)+"]", false)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: #%s", ErrNotFound, id)
	}
	return found[0], nil
}

func (d *Document) query(from *html.Node, selector string, scoped bool) ([]Element, error) {
	xpath, err := ToXPath(selector, scoped)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes, err := htmlquery.QueryAll(from, xpath)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, &node{doc: d, n: n})
		}
	}
	return out, nil
}

// node is an Element backed by an html.Node of a Document.
type node struct {
	doc *Document
	n   *html.Node
}

func (e *node) Key() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	if id := attr(e.n, "id"); id != "" {
		return "#" + id
	}
	var parts []string
	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		idx := 1
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && s.Data == n.Data {
				idx++
			}
		}
		parts = append([]string{fmt.Sprintf("%s[%d]", n.Data, idx)}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

func (e *node) Attr(name string) (string, bool, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for _, a := range e.n.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

func (e *node) SetAttr(name, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.n, name, value)
	return nil
}

func (e *node) RemoveAttr(name string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	removeAttr(e.n, name)
	return nil
}

func (e *node) InnerHTML() (string, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return renderChildren(e.n)
}

func (e *node) SetInnerHTML(markup string) error {
	// The context node decides the parsing rules (e.g. table content).
	nodes, err := html.ParseFragment(strings.NewReader(markup), e.n)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}

	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	removeChildren(e.n)
	for _, c := range nodes {
		e.n.AppendChild(c)
	}
	return nil
}

func (e *node) Value() (string, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	switch e.n.DataAtom {
	case atom.Input:
		return attr(e.n, "value"), nil
	case atom.Textarea:
		return textContent(e.n), nil
	case atom.Select:
		opt := selectedOption(e.n)
		if opt == nil {
			return "", nil
		}
		return optionValue(opt), nil
	default:
		return textContent(e.n), nil
	}
}

func (e *node) SetValue(value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	switch e.n.DataAtom {
	case atom.Input:
		setAttr(e.n, "value", value)
	case atom.Select:
		matched := false
		for _, opt := range options(e.n) {
			if !matched && optionValue(opt) == value {
				setAttr(opt, "selected", "selected")
				matched = true
				continue
			}
			removeAttr(opt, "selected")
		}
		if !matched {
			return fmt.Errorf("select %s has no option %q", attr(e.n, "id"), value)
		}
	default:
		removeChildren(e.n)
		if value != "" {
			e.n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
		}
	}
	return nil
}

// Visible follows jQuery show/hide semantics: an element is hidden when its
// inline style has display:none or it carries the hidden attribute.
func (e *node) Visible() (bool, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if _, hidden := lookupAttr(e.n, "hidden"); hidden {
		return false, nil
	}
	display, _ := styleProp(attr(e.n, "style"), "display")
	return display != "none", nil
}

func (e *node) SetVisible(visible bool) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	style := attr(e.n, "style")
	if visible {
		removeAttr(e.n, "hidden")
		style = withoutStyleProp(style, "display")
	} else {
		style = withStyleProp(style, "display", "none")
	}
	if style == "" {
		removeAttr(e.n, "style")
	} else {
		setAttr(e.n, "style", style)
	}
	return nil
}

func (e *node) Query(selector string) ([]Element, error) {
	return e.doc.query(e.n, selector, true)
}

// =============================================================================
// html.Node helpers (caller holds the document lock)
// =============================================================================

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func renderChildren(n *html.Node) (string, error) {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", fmt.Errorf("render: %w", err)
		}
	}
	return sb.String(), nil
}

func textContent(n *html.Node) string {
	return htmlquery.InnerText(n)
}

func options(sel *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Option {
				out = append(out, c)
				continue
			}
			walk(c) // optgroup
		}
	}
	walk(sel)
	return out
}

func selectedOption(sel *html.Node) *html.Node {
	opts := options(sel)
	for _, o := range opts {
		if _, ok := lookupAttr(o, "selected"); ok {
			return o
		}
	}
	if len(opts) > 0 {
		return opts[0]
	}
	return nil
}

func optionValue(opt *html.Node) string {
	if v, ok := lookupAttr(opt, "value"); ok {
		return v
	}
	return strings.TrimSpace(textContent(opt))
}

// styleProp returns the value of prop in an inline style declaration.
func styleProp(style, prop string) (string, bool) {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), prop) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func withoutStyleProp(style, prop string) string {
	var kept []string
	for _, decl := range strings.Split(style, ";") {
		k, _, _ := strings.Cut(decl, ":")
		if strings.TrimSpace(decl) == "" || strings.EqualFold(strings.TrimSpace(k), prop) {
			continue
		}
		kept = append(kept, strings.TrimSpace(decl))
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "; ") + ";"
}

func withStyleProp(style, prop, value string) string {
	rest := withoutStyleProp(style, prop)
	return strings.TrimSpace(rest + " " + prop + ": " + value + ";")
}
