package page

// TriggerInfo describes one bound invalidation trigger.
type TriggerInfo struct {
	CacheID  string `json:"cid"`
	TargetID string `json:"target"`
	State    string `json:"state"`
	Last     string `json:"last"`
}

// ToggleInfo describes one bound toggle rule.
type ToggleInfo struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Match   string `json:"match"`
	Origin  string `json:"origin"`
	Visible bool   `json:"visible"`
}

// FormInfo describes the guarded alert form.
type FormInfo struct {
	Form         string `json:"form"`
	Autocomplete bool   `json:"autocomplete"`
	State        string `json:"state"`
	Attempts     int    `json:"attempts"`
}

// Summary is a snapshot of everything bound to a page.
type Summary struct {
	Triggers []TriggerInfo `json:"triggers"`
	Toggles  []ToggleInfo  `json:"toggles"`
	Form     *FormInfo     `json:"form,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Summary snapshots the runtime's bindings and their current state.
func (r *Runtime) Summary() Summary {
	s := Summary{Warnings: r.Warnings()}
	for _, c := range r.triggers {
		e := c.Entry()
		s.Triggers = append(s.Triggers, TriggerInfo{
			CacheID:  e.CacheID,
			TargetID: e.TargetID,
			State:    c.State().String(),
			Last:     c.LastOutcome().String(),
		})
	}
	for _, tb := range r.toggles {
		s.Toggles = append(s.Toggles, ToggleInfo{
			Source:  tb.source.Key(),
			Target:  tb.target.Key(),
			Match:   tb.rule.Match(),
			Origin:  tb.origin,
			Visible: tb.rule.Visible(),
		})
	}
	if r.guard != nil {
		s.Form = &FormInfo{
			Form:         r.form.Key(),
			Autocomplete: r.autocomplete,
			State:        r.guard.State().String(),
			Attempts:     r.guard.Attempts(),
		}
	}
	return s
}
