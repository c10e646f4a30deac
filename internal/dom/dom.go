// Package dom defines the rendered-page contract the alert page behaviors run
// against, and an in-memory implementation over golang.org/x/net/html.
//
// The same Page and Element interfaces are implemented by the live browser
// backend in internal/browser, so components never know which tree they drive.
package dom

import "errors"

// ErrNotFound is returned when a selector or id matches nothing.
var ErrNotFound = errors.New("element not found")

// Element is one addressable node of the rendered page.
type Element interface {
	// Key is a stable identity used for logging and event routing.
	Key() string
	Attr(name string) (value string, ok bool, err error)
	SetAttr(name, value string) error
	RemoveAttr(name string) error
	InnerHTML() (string, error)
	SetInnerHTML(markup string) error
	// Value is the form value: input value, textarea text, selected option.
	Value() (string, error)
	SetValue(value string) error
	Visible() (bool, error)
	SetVisible(visible bool) error
	// Query finds descendants matching a CSS selector.
	Query(selector string) ([]Element, error)
}

// Page is a rendered page tree.
type Page interface {
	Query(selector string) ([]Element, error)
	QueryOne(selector string) (Element, error)
	ByID(id string) (Element, error)
}

// Event is a UI event delivered to a behavior.
type Event struct {
	Type   string
	Target Element

	defaultPrevented bool
}

// NewEvent creates an event of the given type targeting el.
func NewEvent(typ string, target Element) *Event {
	return &Event{Type: typ, Target: target}
}

// PreventDefault suppresses the browser's default action (navigation, submit).
func (e *Event) PreventDefault() {
	if e != nil {
		e.defaultPrevented = true
	}
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e != nil && e.defaultPrevented
}

// IsDisabled reports whether el carries the disabled attribute.
func IsDisabled(el Element) (bool, error) {
	_, ok, err := el.Attr("disabled")
	return ok, err
}

// SetDisabled adds or removes the disabled attribute.
func SetDisabled(el Element, disabled bool) error {
	if disabled {
		return el.SetAttr("disabled", "disabled")
	}
	return el.RemoveAttr("disabled")
}

// QueryOne returns the first descendant of el matching selector.
func QueryOne(el Element, selector string) (Element, error) {
	found, err := el.Query(selector)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}
