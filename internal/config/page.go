package config

// PageConfig describes the rendered-page contract the runtime binds to.
type PageConfig struct {
	TriggerSelector      string `yaml:"trigger_selector"`
	CacheIDAttr          string `yaml:"cache_id_attr"`
	TargetAttr           string `yaml:"target_attr"`
	FormSelector         string `yaml:"form_selector"`
	AutocompleteSelector string `yaml:"autocomplete_selector"`
	CanonicalAttr        string `yaml:"canonical_attr"`
	// BackingSelector names a hidden field that receives the canonical value.
	// Empty means the autocomplete input itself is overwritten.
	BackingSelector  string         `yaml:"backing_selector"`
	TextAreaSelector string         `yaml:"textarea_selector"`
	SubmitSelector   string         `yaml:"submit_selector"`
	Toggles          []ToggleConfig `yaml:"toggles"`
}

// ToggleConfig declares one visibility rule: Target is shown iff the value of
// Source equals Match.
type ToggleConfig struct {
	Source string `yaml:"source"`
	Match  string `yaml:"match"`
	Target string `yaml:"target"`
}

// DefaultPageConfig matches the alert page markup.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		TriggerSelector:      ".clear-cache",
		CacheIDAttr:          "data-cid",
		TargetAttr:           "data-target",
		FormSelector:         "form#alert-form",
		AutocompleteSelector: "#autoComplete",
		CanonicalAttr:        "data-email",
		TextAreaSelector:     "textarea",
		SubmitSelector:       "input[type=submit]",
	}
}
