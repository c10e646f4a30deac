package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"alertdesk/internal/page"
)

var checkCmd = &cobra.Command{
	Use:   "check [page]...",
	Short: "Bind several pages concurrently and report binding problems",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

type checkResult struct {
	name    string
	summary page.Summary
	err     error
}

// checkPages binds every page, at most parallel at a time. A page that fails
// to load is reported in its result rather than failing the group.
func checkPages(ctx context.Context, pages []string, parallel int) []checkResult {
	c := currentConfig()
	results := make([]checkResult, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, name := range pages {
		g.Go(func() error {
			res := checkResult{name: name}
			bp, err := bindPage(gctx, name, c, nil)
			if err != nil {
				res.err = err
			} else {
				res.summary = bp.rt.Summary()
				bp.Close()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	parallel, _ := cmd.Flags().GetInt("parallel")
	out := cmd.OutOrStdout()

	problems := 0
	for _, res := range checkPages(ctx, args, parallel) {
		if res.err != nil {
			problems++
			fmt.Fprintf(out, "FAIL %s: %v\n", res.name, res.err)
			continue
		}
		if len(res.summary.Warnings) > 0 {
			problems++
			fmt.Fprintf(out, "WARN %s\n", res.name)
			for _, w := range res.summary.Warnings {
				fmt.Fprintf(out, "  %s\n", w)
			}
			continue
		}
		fmt.Fprintf(out, "ok   %s (%d triggers, %d toggles)\n", res.name, len(res.summary.Triggers), len(res.summary.Toggles))
	}
	if problems > 0 {
		return fmt.Errorf("%d of %d pages have problems", problems, len(args))
	}
	return nil
}
