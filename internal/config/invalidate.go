package config

import (
	"fmt"
	"time"
)

// Invalidation policies for overlapping requests on one trigger.
const (
	PolicySequence       = "sequence"
	PolicyCancelPrevious = "cancel"
	PolicyLastWins       = "last-wins"
)

// ValidPolicies lists the accepted invalidate.policy values.
var ValidPolicies = []string{PolicySequence, PolicyCancelPrevious, PolicyLastWins}

// ValidatePolicy rejects anything but the known invalidation policies.
func ValidatePolicy(p string) error {
	for _, v := range ValidPolicies {
		if p == v {
			return nil
		}
	}
	return fmt.Errorf("invalid invalidation policy: %q (valid: %v)", p, ValidPolicies)
}

// InvalidateConfig configures the cache invalidation workflow.
type InvalidateConfig struct {
	URL    string `yaml:"url"`
	Policy string `yaml:"policy"`
	// Timeout is empty by default: the transport's own defaults apply.
	Timeout          string `yaml:"timeout"`
	InFlightMarkup   string `yaml:"in_flight_markup"`
	IdleMarkup       string `yaml:"idle_markup"`
	RestoreOnFailure bool   `yaml:"restore_on_failure"`
}

// DefaultInvalidateConfig returns the invalidation defaults.
func DefaultInvalidateConfig() InvalidateConfig {
	return InvalidateConfig{
		Policy:         PolicySequence,
		InFlightMarkup: `<i class="fa fa-refresh fa-spin"></i>`,
		IdleMarkup:     `<i class="fa fa-refresh"></i>`,
	}
}

// GetTimeout returns the client timeout; zero means none.
func (c InvalidateConfig) GetTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid invalidate.timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}
