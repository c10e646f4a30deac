// Package page binds the alert page behaviors to a rendered page and routes
// UI events to them on the event loop.
package page

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"alertdesk/internal/config"
	"alertdesk/internal/dom"
	"alertdesk/internal/guard"
	"alertdesk/internal/invalidate"
	"alertdesk/internal/logging"
	"alertdesk/internal/loop"
	"alertdesk/internal/notify"
	"alertdesk/internal/toggle"
)

// ErrUnbound is returned for events whose target has no bound behavior.
var ErrUnbound = errors.New("no behavior bound to element")

// Deps are the collaborators a runtime needs. Client may be nil, in which
// case one is built from the invalidate config.
type Deps struct {
	Loop     *loop.Loop
	Client   invalidate.Client
	Notifier notify.Notifier
}

// Runtime owns every behavior bound to one page.
type Runtime struct {
	page dom.Page
	cfg  *config.Config
	loop *loop.Loop
	ctx  context.Context

	triggers     []*invalidate.Controller
	byTrigger    map[string]*invalidate.Controller
	toggles      []*toggleBinding
	guard        *guard.Guard
	form         dom.Element
	autocomplete bool

	mu       sync.Mutex
	warnings []string
}

type toggleBinding struct {
	source dom.Element
	target dom.Element
	origin string // "config" or "markup"
	rule   *toggle.Rule
}

// Bind discovers the behaviors on p and evaluates every toggle rule once.
// Bindings that cannot be resolved are skipped with a warning; only a
// broken loop or configuration fails the whole bind. ctx bounds the
// requests issued by the runtime.
func Bind(ctx context.Context, p dom.Page, cfg *config.Config, deps Deps) (*Runtime, error) {
	if deps.Loop == nil {
		return nil, fmt.Errorf("bind page: no event loop")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if cfg.Invalidate.Policy != "" {
		if err := config.ValidatePolicy(cfg.Invalidate.Policy); err != nil {
			return nil, fmt.Errorf("bind page: %w", err)
		}
	}
	if deps.Client == nil && cfg.Invalidate.URL != "" {
		timeout, err := cfg.Invalidate.GetTimeout()
		if err != nil {
			return nil, fmt.Errorf("bind page: %w", err)
		}
		deps.Client = invalidate.NewHTTPClient(cfg.Invalidate.URL, &http.Client{Timeout: timeout})
	}

	r := &Runtime{
		page:      p,
		cfg:       cfg,
		loop:      deps.Loop,
		ctx:       ctx,
		byTrigger: make(map[string]*invalidate.Controller),
	}

	timer := logging.StartTimer(logging.CategoryPage, "bind")
	defer timer.Stop()

	var bindErr error
	if err := deps.Loop.Do(ctx, func() {
		bindErr = r.bind(deps)
	}); err != nil {
		return nil, fmt.Errorf("bind page: %w", err)
	}
	if bindErr != nil {
		return nil, bindErr
	}
	logging.Page("bound %d triggers, %d toggles, guard=%v", len(r.triggers), len(r.toggles), r.guard != nil)
	return r, nil
}

func (r *Runtime) bind(deps Deps) error {
	if err := r.bindTriggers(deps); err != nil {
		return err
	}
	if err := r.bindToggles(); err != nil {
		return err
	}
	return r.bindGuard()
}

func (r *Runtime) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.PageWarn("%s", msg)
	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
}

func (r *Runtime) bindTriggers(deps Deps) error {
	pc := r.cfg.Page
	found, err := r.page.Query(pc.TriggerSelector)
	if err != nil {
		return fmt.Errorf("find triggers: %w", err)
	}
	if len(found) > 0 && deps.Client == nil {
		r.warn("%d invalidation triggers found but no endpoint is configured", len(found))
		return nil
	}

	for _, trigger := range found {
		cid, ok, err := trigger.Attr(pc.CacheIDAttr)
		if err != nil {
			return fmt.Errorf("read %s of %s: %w", pc.CacheIDAttr, trigger.Key(), err)
		}
		if !ok {
			r.warn("trigger %s has no %s", trigger.Key(), pc.CacheIDAttr)
			continue
		}
		targetID, _, err := trigger.Attr(pc.TargetAttr)
		if err != nil {
			return fmt.Errorf("read %s of %s: %w", pc.TargetAttr, trigger.Key(), err)
		}
		target, err := r.page.ByID(targetID)
		if err != nil {
			r.warn("trigger %s (cid %s): target %q: %v", trigger.Key(), cid, targetID, err)
			continue
		}

		c, err := invalidate.NewController(invalidate.Entry{
			CacheID:  cid,
			TargetID: targetID,
			Target:   target,
			Trigger:  trigger,
		}, deps.Client, r.loop, deps.Notifier, r.cfg.Invalidate)
		if err != nil {
			r.warn("trigger %s: %v", trigger.Key(), err)
			continue
		}
		r.triggers = append(r.triggers, c)
		r.byTrigger[trigger.Key()] = c
		logging.PageDebug("trigger %s bound to cid %s -> #%s", trigger.Key(), cid, targetID)
	}
	return nil
}

func (r *Runtime) bindToggles() error {
	seen := make(map[string]string) // source->target to the bound match value
	add := func(source, target dom.Element, match, origin string) error {
		key := source.Key() + "->" + target.Key()
		if bound, ok := seen[key]; ok {
			if bound != match {
				r.warn("toggle %s: %s rule matching %q ignored, already bound to %q", key, origin, match, bound)
			}
			return nil
		}
		seen[key] = match

		rule, err := toggle.NewRule(match, target)
		if err != nil {
			return err
		}
		tb := &toggleBinding{source: source, target: target, origin: origin, rule: rule}
		if err := tb.evaluate(); err != nil {
			r.warn("toggle %s: %v", key, err)
			return nil
		}
		r.toggles = append(r.toggles, tb)
		return nil
	}

	for _, tc := range r.cfg.Page.Toggles {
		source, err := r.page.QueryOne(tc.Source)
		if err != nil {
			r.warn("toggle source %q: %v", tc.Source, err)
			continue
		}
		target, err := r.page.QueryOne(tc.Target)
		if err != nil {
			r.warn("toggle target %q: %v", tc.Target, err)
			continue
		}
		if err := add(source, target, tc.Match, "config"); err != nil {
			return err
		}
	}

	sources, err := r.page.Query("[data-toggle-target]")
	if err != nil {
		return fmt.Errorf("find toggle sources: %w", err)
	}
	for _, source := range sources {
		sel, _, err := source.Attr("data-toggle-target")
		if err != nil {
			return err
		}
		match, _, err := source.Attr("data-toggle-value")
		if err != nil {
			return err
		}
		target, err := r.page.QueryOne(sel)
		if err != nil {
			r.warn("toggle %s: target %q: %v", source.Key(), sel, err)
			continue
		}
		if err := add(source, target, match, "markup"); err != nil {
			return err
		}
	}
	return nil
}

func (tb *toggleBinding) evaluate() error {
	v, err := tb.source.Value()
	if err != nil {
		return fmt.Errorf("read %s: %w", tb.source.Key(), err)
	}
	return tb.rule.Evaluate(v)
}

func (r *Runtime) bindGuard() error {
	pc := r.cfg.Page
	form, err := r.page.QueryOne(pc.FormSelector)
	if errors.Is(err, dom.ErrNotFound) {
		logging.PageDebug("no form matches %q; submission guard not bound", pc.FormSelector)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find form: %w", err)
	}

	submit, err := dom.QueryOne(form, pc.SubmitSelector)
	if err != nil {
		r.warn("form %s: submit control %q: %v", form.Key(), pc.SubmitSelector, err)
		return nil
	}
	areas, err := form.Query(pc.TextAreaSelector)
	if err != nil {
		return fmt.Errorf("find text areas: %w", err)
	}

	b := guard.Binding{Form: form, Submit: submit, TextAreas: areas}
	if input, err := r.page.QueryOne(pc.AutocompleteSelector); err == nil {
		ac := &guard.AutocompleteBinding{Input: input, Attr: pc.CanonicalAttr}
		if pc.BackingSelector != "" {
			backing, err := r.page.QueryOne(pc.BackingSelector)
			if err != nil {
				r.warn("autocomplete backing field %q: %v", pc.BackingSelector, err)
				return nil
			}
			ac.Backing = backing
		}
		b.Autocomplete = ac
	}

	g, err := guard.New(b, r.cfg.Guard)
	if err != nil {
		r.warn("form %s: %v", form.Key(), err)
		return nil
	}
	r.guard = g
	r.form = form
	r.autocomplete = b.Autocomplete != nil
	return nil
}

// Warnings returns the binding problems found so far.
func (r *Runtime) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...)
}

// Triggers returns the bound invalidation controllers in document order.
func (r *Runtime) Triggers() []*invalidate.Controller { return r.triggers }

// Trigger returns the controller bound to cacheID.
func (r *Runtime) Trigger(cacheID string) (*invalidate.Controller, bool) {
	for _, c := range r.triggers {
		if c.Entry().CacheID == cacheID {
			return c, true
		}
	}
	return nil, false
}

// Guard returns the submission guard, or nil if the page has no alert form.
func (r *Runtime) Guard() *guard.Guard { return r.guard }

// Quiesce waits for every outstanding request to be applied.
func (r *Runtime) Quiesce(ctx context.Context) error {
	return r.loop.Quiesce(ctx)
}

// Dispatch routes a UI event by type to the behavior bound to target.
func (r *Runtime) Dispatch(ctx context.Context, typ string, target dom.Element) (*dom.Event, error) {
	switch strings.ToLower(typ) {
	case "click":
		return r.Click(ctx, target)
	case "change", "input":
		return r.Change(ctx, target)
	case "submit":
		res, err := r.Submit(ctx)
		if res == nil {
			return nil, err
		}
		return res.Event, err
	default:
		return nil, fmt.Errorf("%w: unsupported event %q", ErrUnbound, typ)
	}
}

// Click activates the invalidation trigger el.
func (r *Runtime) Click(ctx context.Context, el dom.Element) (*dom.Event, error) {
	c, ok := r.byTrigger[el.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: click on %s", ErrUnbound, el.Key())
	}
	ev := dom.NewEvent("click", el)
	var actErr error
	if err := r.loop.Do(ctx, func() {
		actErr = c.Activate(r.ctx, ev)
	}); err != nil {
		return ev, err
	}
	return ev, actErr
}

// ActivateCID clicks the trigger bound to cacheID.
func (r *Runtime) ActivateCID(ctx context.Context, cacheID string) (*dom.Event, error) {
	c, ok := r.Trigger(cacheID)
	if !ok {
		return nil, fmt.Errorf("%w: no trigger for cid %q", ErrUnbound, cacheID)
	}
	return r.Click(ctx, c.Entry().Trigger)
}

// Change re-evaluates every toggle rule whose source is el.
func (r *Runtime) Change(ctx context.Context, el dom.Element) (*dom.Event, error) {
	var matched []*toggleBinding
	for _, tb := range r.toggles {
		if tb.source.Key() == el.Key() {
			matched = append(matched, tb)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: change on %s", ErrUnbound, el.Key())
	}

	ev := dom.NewEvent("change", el)
	var errs []error
	if err := r.loop.Do(ctx, func() {
		for _, tb := range matched {
			if err := tb.evaluate(); err != nil {
				errs = append(errs, err)
			}
		}
	}); err != nil {
		return ev, err
	}
	return ev, errors.Join(errs...)
}

// SetValue changes the value of the control matching selector and fires a
// change event on it, as a user edit would.
func (r *Runtime) SetValue(ctx context.Context, selector, value string) (*dom.Event, error) {
	el, err := r.page.QueryOne(selector)
	if err != nil {
		return nil, err
	}
	var setErr error
	if err := r.loop.Do(ctx, func() { setErr = el.SetValue(value) }); err != nil {
		return nil, err
	}
	if setErr != nil {
		return nil, fmt.Errorf("set %s: %w", selector, setErr)
	}
	return r.Change(ctx, el)
}

// Binding is one element and the UI event the runtime handles on it.
type Binding struct {
	Event   string
	Element dom.Element
}

// Bindings lists every element with a bound behavior, for backends that
// have to subscribe to events explicitly.
func (r *Runtime) Bindings() []Binding {
	var out []Binding
	for _, c := range r.triggers {
		out = append(out, Binding{Event: "click", Element: c.Entry().Trigger})
	}
	seen := make(map[string]bool)
	for _, tb := range r.toggles {
		if seen[tb.source.Key()] {
			continue
		}
		seen[tb.source.Key()] = true
		out = append(out, Binding{Event: "change", Element: tb.source})
	}
	if r.form != nil {
		out = append(out, Binding{Event: "submit", Element: r.form})
	}
	return out
}
