package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"alertdesk/internal/logging"
	"alertdesk/internal/page"
)

var watchCmd = &cobra.Command{
	Use:   "watch [page]",
	Short: "Re-inspect a page file whenever it changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

const watchDebounce = 200 * time.Millisecond

func runWatch(cmd *cobra.Command, args []string) error {
	if page.IsURL(args[0]) {
		return fmt.Errorf("watch needs a file, got %s", args[0])
	}
	ctx, cancel := interruptContext()
	defer cancel()
	return watchPage(ctx, args[0], cmd.OutOrStdout())
}

// watchPage inspects path once, then again after every burst of writes,
// until ctx is done.
func watchPage(ctx context.Context, path string, out io.Writer) error {
	inspect := func() {
		bp, err := bindPage(ctx, path, currentConfig(), nil)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return
		}
		defer bp.Close()
		printSummary(out, path, bp.rt.Summary())
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace files instead of writing them.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	inspect()

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			logging.PageDebug("watch: %s", ev)
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			fire = debounce.C
		case <-fire:
			fire = nil
			inspect()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.PageWarn("watch error: %v", err)
		}
	}
}
