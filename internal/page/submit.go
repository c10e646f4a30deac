package page

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alertdesk/internal/dom"
	"alertdesk/internal/guard"
	"alertdesk/internal/logging"
)

// Field is one named form value as it would be posted.
type Field struct {
	Name  string
	Value string
}

// SubmitResult reports one submit of the alert form.
type SubmitResult struct {
	Event *dom.Event
	Guard guard.Result
	// Invalid lists the names of required fields that were empty.
	Invalid []string
	// Fields are the values that would be posted when the submit proceeds.
	Fields []Field
}

// Submitted reports whether the browser would go on to post the form.
func (s *SubmitResult) Submitted() bool {
	return s != nil && !s.Event.DefaultPrevented()
}

// Submit runs the submission guard, then the form's required-field check.
// A failed check prevents the submit and is reported to the guard as a reject.
func (r *Runtime) Submit(ctx context.Context) (*SubmitResult, error) {
	if r.guard == nil {
		return nil, fmt.Errorf("%w: page has no alert form", ErrUnbound)
	}

	res := &SubmitResult{Event: dom.NewEvent("submit", r.form)}
	var subErr error
	if err := r.loop.Do(ctx, func() {
		subErr = r.submit(res)
	}); err != nil {
		return res, err
	}
	return res, subErr
}

func (r *Runtime) submit(res *SubmitResult) error {
	gr, err := r.guard.HandleSubmit(res.Event)
	res.Guard = gr
	if errors.Is(err, guard.ErrDuplicateSubmit) {
		return err
	}
	if err != nil {
		logging.PageWarn("submit preparation: %v", err)
	}

	invalid, verr := requiredMissing(r.form)
	if verr != nil {
		return errors.Join(err, verr)
	}
	res.Invalid = invalid
	if len(invalid) > 0 {
		res.Event.PreventDefault()
		if rerr := r.guard.Reject("required: " + strings.Join(invalid, ", ")); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	fields, ferr := FormValues(r.form)
	res.Fields = fields
	return errors.Join(err, ferr)
}

// requiredMissing returns the names of required controls with an empty value.
func requiredMissing(form dom.Element) ([]string, error) {
	controls, err := form.Query(".//*[(self::input or self::textarea or self::select) and @required]")
	if err != nil {
		return nil, fmt.Errorf("find required fields: %w", err)
	}
	var missing []string
	for _, c := range controls {
		v, err := c.Value()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c.Key(), err)
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, fieldName(c))
		}
	}
	return missing, nil
}

// FormValues collects the named, enabled controls of form in document order.
// Submit buttons are left out.
func FormValues(form dom.Element) ([]Field, error) {
	controls, err := form.Query(".//*[self::input or self::textarea or self::select]")
	if err != nil {
		return nil, fmt.Errorf("find form controls: %w", err)
	}
	var out []Field
	for _, c := range controls {
		name, ok, err := c.Attr("name")
		if err != nil {
			return nil, err
		}
		if !ok || name == "" {
			continue
		}
		typ, _, _ := c.Attr("type")
		if strings.EqualFold(typ, "submit") || strings.EqualFold(typ, "button") {
			continue
		}
		if disabled, _ := dom.IsDisabled(c); disabled {
			continue
		}
		v, err := c.Value()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c.Key(), err)
		}
		out = append(out, Field{Name: name, Value: v})
	}
	return out, nil
}

func fieldName(el dom.Element) string {
	if name, ok, _ := el.Attr("name"); ok && name != "" {
		return name
	}
	return el.Key()
}
