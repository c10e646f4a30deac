package browser

import (
	"context"
	"fmt"

	"alertdesk/internal/notify"
)

// ConsoleNotifier mirrors notifications into the page's devtools console.
type ConsoleNotifier struct {
	page *LivePage
}

// NewConsoleNotifier writes to p's console.
func NewConsoleNotifier(p *LivePage) *ConsoleNotifier {
	return &ConsoleNotifier{page: p}
}

func (c *ConsoleNotifier) Notify(ctx context.Context, n notify.Notification) error {
	method := "info"
	if n.Level == notify.LevelError {
		method = "error"
	}
	_, err := c.page.page.Context(ctx).Eval(`(m, title, body) => console[m]('[' + title + '] ' + body)`, method, n.Title, n.Body)
	if err != nil {
		return fmt.Errorf("console notification: %w", err)
	}
	return nil
}
