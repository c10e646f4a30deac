package config

// GuardConfig configures the alert form submission guard.
type GuardConfig struct {
	// Placeholders are the rich-text editor's empty-state markups.
	Placeholders []string `yaml:"placeholders"`
	// ReenableOnReject re-enables the submit control when validation rejects
	// the submit. Off by default: the control stays disabled until reload.
	ReenableOnReject bool `yaml:"reenable_on_reject"`
}

// DefaultGuardConfig returns the guard defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Placeholders: []string{"<br>", "<br/>", "<p><br></p>", "<p><br/></p>", "<p></p>"},
	}
}
