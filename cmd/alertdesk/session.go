package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"alertdesk/internal/config"
	"alertdesk/internal/dom"
	"alertdesk/internal/loop"
	"alertdesk/internal/notify"
	"alertdesk/internal/page"
)

// boundPage is one page with the runtime bound to it.
type boundPage struct {
	doc      *dom.Document
	rt       *page.Runtime
	loop     *loop.Loop
	notified *notify.Recorder
}

func (b *boundPage) Close() { b.loop.Close() }

// bindPage loads arg and binds the runtime to it. Notifications go to out,
// to the notify log category and to the returned recorder.
func bindPage(ctx context.Context, arg string, c *config.Config, out io.Writer) (*boundPage, error) {
	doc, err := page.Load(ctx, arg, &http.Client{Timeout: c.Browser.NavigationTimeout()})
	if err != nil {
		return nil, err
	}

	rec := &notify.Recorder{}
	var notifier notify.Notifier = notify.Multi{rec, notify.Log{}}
	if out != nil {
		notifier = notify.Multi{rec, notify.Log{}, notify.NewTerminal(out)}
	}

	lp := loop.New(0)
	rt, err := page.Bind(ctx, doc, c, page.Deps{Loop: lp, Notifier: notifier})
	if err != nil {
		lp.Close()
		return nil, fmt.Errorf("bind %s: %w", arg, err)
	}
	if logger != nil {
		logger.Debug("Page bound", zap.String("page", arg), zap.Int("triggers", len(rt.Triggers())))
	}
	return &boundPage{doc: doc, rt: rt, loop: lp, notified: rec}, nil
}
