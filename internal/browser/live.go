package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"github.com/ysmood/gson"

	"alertdesk/internal/dom"
)

// keyAttr stamps elements that have no id so events can find them again.
const keyAttr = "data-alertdesk-key"

// LivePage is a dom.Page backed by a page in a running browser. Every method
// is a round trip over the DevTools protocol.
type LivePage struct {
	ctx  context.Context
	page *rod.Page
}

var _ dom.Page = (*LivePage)(nil)

// NewLivePage wraps page; ctx bounds every call made through it.
func NewLivePage(ctx context.Context, page *rod.Page) *LivePage {
	return &LivePage{ctx: ctx, page: page}
}

// Rod returns the underlying page.
func (p *LivePage) Rod() *rod.Page { return p.page }

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "./") || strings.HasPrefix(selector, "(")
}

func (p *LivePage) Query(selector string) ([]dom.Element, error) {
	page := p.page.Context(p.ctx)
	var (
		els rod.Elements
		err error
	)
	if isXPath(selector) {
		els, err = page.ElementsX(selector)
	} else {
		els, err = page.Elements(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return p.wrapAll(els)
}

func (p *LivePage) QueryOne(selector string) (dom.Element, error) {
	found, err := p.Query(selector)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", dom.ErrNotFound, selector)
	}
	return found[0], nil
}

func (p *LivePage) ByID(id string) (dom.Element, error) {
	found, err := p.Query(`[id="` + cssString(id) + `"]`)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: #%s", dom.ErrNotFound, id)
	}
	return found[0], nil
}

// ByKey resolves a key produced by LiveElement.Key.
func (p *LivePage) ByKey(key string) (dom.Element, error) {
	if strings.HasPrefix(key, "#") {
		return p.ByID(key[1:])
	}
	return p.QueryOne(key)
}

func (p *LivePage) wrapAll(els rod.Elements) ([]dom.Element, error) {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		w, err := p.wrap(el)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// wrap resolves the element's key once, stamping it when it has no id.
func (p *LivePage) wrap(el *rod.Element) (*LiveElement, error) {
	res, err := el.Context(p.ctx).Eval(`(attr, fresh) => {
		if (this.id) return '#' + this.id;
		if (!this.getAttribute(attr)) this.setAttribute(attr, fresh);
		return '[' + attr + '="' + this.getAttribute(attr) + '"]';
	}`, keyAttr, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("stamp element: %w", err)
	}
	return &LiveElement{page: p, el: el, key: res.Value.Str()}, nil
}

// LiveElement is a dom.Element backed by a remote DOM node.
type LiveElement struct {
	page *LivePage
	el   *rod.Element
	key  string
}

var _ dom.Element = (*LiveElement)(nil)

func (e *LiveElement) Key() string { return e.key }

func (e *LiveElement) eval(js string, args ...interface{}) (gson.JSON, error) {
	res, err := e.el.Context(e.page.ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, fmt.Errorf("%s: %w", e.key, err)
	}
	return res.Value, nil
}

func (e *LiveElement) Attr(name string) (string, bool, error) {
	v, err := e.el.Context(e.page.ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("%s: read %s: %w", e.key, name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *LiveElement) SetAttr(name, value string) error {
	_, err := e.eval(`(n, v) => this.setAttribute(n, v)`, name, value)
	return err
}

func (e *LiveElement) RemoveAttr(name string) error {
	_, err := e.eval(`(n) => this.removeAttribute(n)`, name)
	return err
}

func (e *LiveElement) InnerHTML() (string, error) {
	v, err := e.eval(`() => this.innerHTML`)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func (e *LiveElement) SetInnerHTML(markup string) error {
	_, err := e.eval(`(h) => { this.innerHTML = h }`, markup)
	return err
}

func (e *LiveElement) Value() (string, error) {
	v, err := e.eval(`() => ('value' in this && this.tagName !== 'LI') ? String(this.value) : this.textContent`)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func (e *LiveElement) SetValue(value string) error {
	v, err := e.eval(`(v) => {
		if (this.tagName === 'SELECT') {
			this.value = v;
			return this.value === v;
		}
		if ('value' in this) this.value = v; else this.textContent = v;
		return true;
	}`, value)
	if err != nil {
		return err
	}
	if !v.Bool() {
		return fmt.Errorf("select %s has no option %q", e.key, value)
	}
	return nil
}

// Visible uses the same inline-style rule as the in-memory document.
func (e *LiveElement) Visible() (bool, error) {
	v, err := e.eval(`() => !this.hidden && this.style.display !== 'none'`)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func (e *LiveElement) SetVisible(visible bool) error {
	_, err := e.eval(`(v) => {
		if (v) { this.hidden = false; this.style.removeProperty('display'); }
		else { this.style.display = 'none'; }
		if (this.getAttribute('style') === '') this.removeAttribute('style');
	}`, visible)
	return err
}

func (e *LiveElement) Query(selector string) ([]dom.Element, error) {
	el := e.el.Context(e.page.ctx)
	var (
		els rod.Elements
		err error
	)
	if isXPath(selector) {
		els, err = el.ElementsX(selector)
	} else {
		els, err = el.Elements(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: query %q: %w", e.key, selector, err)
	}
	return e.page.wrapAll(els)
}

// cssString escapes s for use inside a double-quoted CSS string.
func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
