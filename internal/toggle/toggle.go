// Package toggle derives a region's visibility from the value of a control.
package toggle

import (
	"errors"
	"fmt"
	"sync"

	"alertdesk/internal/dom"
	"alertdesk/internal/logging"
)

// ErrNoRegion is returned when a rule is built without a region to project to.
var ErrNoRegion = errors.New("toggle rule has no region")

// Evaluate shows region iff source equals match, and hides it otherwise.
func Evaluate(source, match string, region dom.Element) error {
	if region == nil {
		return ErrNoRegion
	}
	if err := region.SetVisible(source == match); err != nil {
		return fmt.Errorf("project visibility of %s: %w", region.Key(), err)
	}
	return nil
}

// Rule binds a match value to one region.
type Rule struct {
	match  string
	region dom.Element

	mu      sync.Mutex
	visible bool
}

// NewRule builds a rule for region.
func NewRule(match string, region dom.Element) (*Rule, error) {
	if region == nil {
		return nil, ErrNoRegion
	}
	return &Rule{match: match, region: region}, nil
}

// Match returns the value that makes the region visible.
func (r *Rule) Match() string { return r.match }

// Region returns the element whose visibility the rule controls.
func (r *Rule) Region() dom.Element { return r.region }

// Evaluate recomputes visibility from the current source value and always
// writes it to the region. The region may be shared with other rules or
// scripts, so the last written value is not trusted.
func (r *Rule) Evaluate(source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	visible := source == r.match
	if err := Evaluate(source, r.match, r.region); err != nil {
		return err
	}
	r.visible = visible
	logging.ToggleDebug("%s visible=%v (source=%q match=%q)", r.region.Key(), visible, source, r.match)
	return nil
}

// Visible reports the visibility derived by the last evaluation.
func (r *Rule) Visible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}
