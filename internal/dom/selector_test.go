package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToXPath(t *testing.T) {
	tests := []struct {
		css    string
		scoped bool
		want   string
	}{
		{"textarea", false, "//textarea"},
		{"textarea", true, ".//textarea"},
		{"#autoComplete", false, "//*[@id='autoComplete']"},
		{"form#alert-form", false, "//form[@id='alert-form']"},
		{".clear-cache", false, "//*[contains(concat(' ', normalize-space(@class), ' '), ' clear-cache ')]"},
		{"input[type=submit]", false, "//input[@type='submit']"},
		{`input[type="submit"]`, true, ".//input[@type='submit']"},
		{"[data-toggle-target]", false, "//*[@data-toggle-target]"},
		{"form > input", false, "//form/input"},
		{"form>input", false, "//form/input"},
		{"div .panel h3", false, "//div//*[contains(concat(' ', normalize-space(@class), ' '), ' panel ')]//h3"},
		{"input, select", false, "//input | //select"},
		{"//div[@id='x']", false, "//div[@id='x']"},
	}
	for _, tt := range tests {
		t.Run(tt.css, func(t *testing.T) {
			got, err := ToXPath(tt.css, tt.scoped)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToXPathErrors(t *testing.T) {
	for _, css := range []string{"", "> a", "a >", "input[type=submit", "#", "a..b", "a, "} {
		t.Run(css, func(t *testing.T) {
			_, err := ToXPath(css, false)
			assert.Error(t, err)
		})
	}
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", literal("plain"))
	assert.Equal(t, `"it's"`, literal("it's"))
	assert.Equal(t, `concat('a', "'", 'b"c')`, literal(`a'b"c`))
}
