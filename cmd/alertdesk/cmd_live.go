package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"alertdesk/internal/browser"
	"alertdesk/internal/logging"
	"alertdesk/internal/loop"
	"alertdesk/internal/notify"
	"alertdesk/internal/page"
)

var liveCmd = &cobra.Command{
	Use:   "live [url]",
	Short: "Open the page in Chrome and run the behaviors against it",
	Long: `Opens the page in Chrome and binds the behaviors to the live document.
Clicks, changes and submits in the browser are routed to alertdesk until
interrupted. Notifications are printed here and mirrored to the page console.`,
	Args: cobra.ExactArgs(1),
	RunE: runLive,
}

func runLive(cmd *cobra.Command, args []string) error {
	c := *currentConfig()
	if cmd.Flags().Changed("headless") {
		c.Browser.Headless, _ = cmd.Flags().GetBool("headless")
	}
	if u, _ := cmd.Flags().GetString("debugger-url"); u != "" {
		c.Browser.DebuggerURL = u
	}

	ctx, cancel := interruptContext()
	defer cancel()

	mgr := browser.NewSessionManager(c.Browser)
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logging.BrowserWarn("browser shutdown failed: %v", err)
		}
	}()

	sess, err := mgr.CreateSession(ctx, args[0])
	if err != nil {
		return err
	}
	live, err := mgr.Live(ctx, sess.ID)
	if err != nil {
		return err
	}

	lp := loop.New(0)
	defer lp.Close()

	notifier := notify.Multi{notify.NewTerminal(cmd.OutOrStdout()), notify.Log{}, browser.NewConsoleNotifier(live)}
	rt, err := page.Bind(ctx, live, &c, page.Deps{Loop: lp, Notifier: notifier})
	if err != nil {
		return fmt.Errorf("bind %s: %w", args[0], err)
	}
	printSummary(cmd.OutOrStdout(), args[0], rt.Summary())

	stop, err := live.Bridge(ctx, rt, rt.Bindings())
	if err != nil {
		return err
	}
	defer func() { _ = stop() }()

	fmt.Fprintf(os.Stderr, "Listening on session %s (Ctrl+C to stop)\n", sess.ID)
	<-ctx.Done()
	return nil
}
