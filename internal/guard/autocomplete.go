package guard

import (
	"fmt"

	"alertdesk/internal/dom"
	"alertdesk/internal/logging"
)

// DefaultCanonicalAttr holds the canonical identifier on the autocomplete input.
const DefaultCanonicalAttr = "data-email"

// AutocompleteBinding relates a visible autocomplete input to the field the
// server reads. The backing field must carry the canonical identifier, never
// the display text.
type AutocompleteBinding struct {
	Input dom.Element
	// Backing defaults to Input: the input's own value is overwritten.
	Backing dom.Element
	// Attr defaults to DefaultCanonicalAttr.
	Attr string
}

// Sync copies the canonical identifier into the backing field and returns it.
// A missing attribute clears the backing field so display text is never sent.
func (b AutocompleteBinding) Sync() (string, error) {
	if b.Input == nil {
		return "", fmt.Errorf("autocomplete binding has no input")
	}
	backing := b.Backing
	if backing == nil {
		backing = b.Input
	}
	attr := b.Attr
	if attr == "" {
		attr = DefaultCanonicalAttr
	}

	canonical, ok, err := b.Input.Attr(attr)
	if err != nil {
		return "", fmt.Errorf("read %s of %s: %w", attr, b.Input.Key(), err)
	}
	if !ok {
		logging.GuardDebug("%s has no %s; clearing %s", b.Input.Key(), attr, backing.Key())
		canonical = ""
	}
	if err := backing.SetValue(canonical); err != nil {
		return "", fmt.Errorf("set %s: %w", backing.Key(), err)
	}
	return canonical, nil
}
