package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	successColor = lipgloss.Color("#8BC34A")
	errorColor   = lipgloss.Color("#e53935")
	mutedColor   = lipgloss.Color("#6c757d")
)

// Terminal renders notifications as styled lines, toast style.
type Terminal struct {
	mu  sync.Mutex
	w   io.Writer
	ok  lipgloss.Style
	bad lipgloss.Style
	ts  lipgloss.Style
}

// NewTerminal writes to w. Styling degrades to plain text when w is not a
// color-capable terminal.
func NewTerminal(w io.Writer) *Terminal {
	r := lipgloss.NewRenderer(w)
	return &Terminal{
		w:   w,
		ok:  r.NewStyle().Bold(true).Foreground(successColor),
		bad: r.NewStyle().Bold(true).Foreground(errorColor),
		ts:  r.NewStyle().Foreground(mutedColor),
	}
}

func (t *Terminal) Notify(_ context.Context, n Notification) error {
	label := t.ok
	if n.Level == LevelError {
		label = t.bad
	}
	line := fmt.Sprintf("%s %s %s\n",
		t.ts.Render(n.Time.Format("15:04:05")),
		label.Render("["+n.Title+"]"),
		n.Body,
	)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, line); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}
