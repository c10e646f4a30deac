// Package guard prepares the alert form for submission: it writes canonical
// identifiers, blanks rich-text placeholders and blocks duplicate submits.
package guard

import (
	"errors"
	"fmt"
	"sync"

	"alertdesk/internal/config"
	"alertdesk/internal/dom"
	"alertdesk/internal/logging"
)

var (
	// ErrDuplicateSubmit is returned when the form is submitted while a
	// previous submission is pending.
	ErrDuplicateSubmit = errors.New("form submission already pending")
	// ErrNoSubmitControl is returned when the form has no submit control.
	ErrNoSubmitControl = errors.New("form has no submit control")
)

// State is the submission state of the form.
type State int

const (
	StateReady State = iota
	StatePending
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePending:
		return "pending"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Binding is the set of form elements the guard owns.
type Binding struct {
	Form         dom.Element
	Submit       dom.Element
	TextAreas    []dom.Element
	Autocomplete *AutocompleteBinding
}

// Result describes what one submit preparation did.
type Result struct {
	Canonical string
	// Blanked lists the keys of text areas whose placeholder was removed.
	Blanked []string
	State   State
}

// Guard intercepts submits of one form.
type Guard struct {
	b            Binding
	placeholders map[string]struct{}
	reenable     bool

	mu       sync.Mutex
	state    State
	attempts int
	reason   string
}

// New binds a guard. Placeholders and the reject policy come from cfg.
func New(b Binding, cfg config.GuardConfig) (*Guard, error) {
	if b.Submit == nil {
		return nil, ErrNoSubmitControl
	}
	ph := make(map[string]struct{}, len(cfg.Placeholders))
	for _, p := range cfg.Placeholders {
		ph[p] = struct{}{}
	}
	return &Guard{b: b, placeholders: ph, reenable: cfg.ReenableOnReject}, nil
}

// HandleSubmit prepares the form. The first submit normalizes the fields and
// disables the submit control; any submit after that is blocked until Reject
// returns the guard to Ready.
func (g *Guard) HandleSubmit(ev *dom.Event) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.attempts++
	if g.state != StateReady {
		ev.PreventDefault()
		logging.GuardWarn("submit #%d blocked in state %s", g.attempts, g.state)
		return Result{State: g.state}, ErrDuplicateSubmit
	}

	var res Result
	var errs []error

	if g.b.Autocomplete != nil {
		canonical, err := g.b.Autocomplete.Sync()
		if err != nil {
			errs = append(errs, err)
		}
		res.Canonical = canonical
	}

	for _, area := range g.b.TextAreas {
		blanked, err := g.blankPlaceholder(area)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if blanked {
			res.Blanked = append(res.Blanked, area.Key())
		}
	}

	// The control is disabled even if a normalization step failed.
	if err := dom.SetDisabled(g.b.Submit, true); err != nil {
		errs = append(errs, fmt.Errorf("disable %s: %w", g.b.Submit.Key(), err))
	}
	g.state = StatePending
	res.State = g.state

	logging.Guard("submit prepared (blanked=%d)", len(res.Blanked))
	return res, errors.Join(errs...)
}

func (g *Guard) blankPlaceholder(area dom.Element) (bool, error) {
	v, err := area.Value()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", area.Key(), err)
	}
	if _, ok := g.placeholders[v]; !ok {
		return false, nil
	}
	if err := area.SetValue(""); err != nil {
		return false, fmt.Errorf("blank %s: %w", area.Key(), err)
	}
	logging.GuardDebug("%s held placeholder %q; blanked", area.Key(), v)
	return true, nil
}

// Reject records that the pending submission did not lead to navigation.
// With reenable_on_reject the submit control is re-enabled and the guard is
// Ready again; otherwise it stays disabled.
func (g *Guard) Reject(reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StatePending {
		return nil
	}
	g.reason = reason
	if !g.reenable {
		g.state = StateRejected
		logging.GuardWarn("submit rejected (%s); control stays disabled", reason)
		return nil
	}
	if err := dom.SetDisabled(g.b.Submit, false); err != nil {
		return fmt.Errorf("re-enable %s: %w", g.b.Submit.Key(), err)
	}
	g.state = StateReady
	logging.Guard("submit rejected (%s); control re-enabled", reason)
	return nil
}

// State returns the current submission state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Attempts counts submit events seen, blocked ones included.
func (g *Guard) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// RejectReason returns the reason given to the last Reject.
func (g *Guard) RejectReason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

// Form returns the guarded form element.
func (g *Guard) Form() dom.Element { return g.b.Form }
