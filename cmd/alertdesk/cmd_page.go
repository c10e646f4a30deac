package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alertdesk/internal/invalidate"
)

// =============================================================================
// PAGE COMMANDS - one-shot operations on a rendered page
// =============================================================================

var inspectCmd = &cobra.Command{
	Use:   "inspect [page]",
	Short: "Bind a page and list its triggers, toggles and form",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [page] [cid]",
	Short: "Click the cache trigger for cid and show the refreshed region",
	Args:  cobra.ExactArgs(2),
	RunE:  runInvalidate,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle [page] [selector] [value]",
	Short: "Change a control's value and show the resulting region visibility",
	Args:  cobra.ExactArgs(3),
	RunE:  runToggle,
}

var submitCmd = &cobra.Command{
	Use:   "submit [page]",
	Short: "Submit the alert form and show the values that would be posted",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	inspectCmd.Flags().Bool("json", false, "Print the summary as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	bp, err := bindPage(ctx, args[0], currentConfig(), nil)
	if err != nil {
		return err
	}
	defer bp.Close()

	summary := bp.rt.Summary()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(cmd.OutOrStdout(), args[0], summary)
	return nil
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	c := *currentConfig()
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		c.Invalidate.URL = u
	}
	if err := c.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	bp, err := bindPage(ctx, args[0], &c, out)
	if err != nil {
		return err
	}
	defer bp.Close()

	cid := args[1]
	ctrl, ok := bp.rt.Trigger(cid)
	if !ok {
		return fmt.Errorf("no trigger with cid %q on %s", cid, args[0])
	}
	if logger != nil {
		logger.Info("Invalidating", zap.String("cid", cid), zap.String("endpoint", c.Invalidate.URL))
	}
	if _, err := bp.rt.ActivateCID(ctx, cid); err != nil {
		return err
	}
	if err := bp.rt.Quiesce(ctx); err != nil {
		return err
	}

	region, err := ctrl.Entry().Target.InnerHTML()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "#%s:\n%s\n", ctrl.Entry().TargetID, region)

	if path, _ := cmd.Flags().GetString("out"); path != "" {
		if err := os.WriteFile(path, []byte(bp.doc.String()), 0644); err != nil {
			return fmt.Errorf("write page: %w", err)
		}
	}
	if ctrl.LastOutcome() == invalidate.StateFailed {
		return fmt.Errorf("invalidation of cid %s failed", cid)
	}
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	bp, err := bindPage(ctx, args[0], currentConfig(), nil)
	if err != nil {
		return err
	}
	defer bp.Close()

	if _, err := bp.rt.SetValue(ctx, args[1], args[2]); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, t := range bp.rt.Summary().Toggles {
		fmt.Fprintf(out, "%s visible=%v\n", t.Target, t.Visible)
	}
	return nil
}

var errSubmitPrevented = errors.New("submit prevented")

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	bp, err := bindPage(ctx, args[0], currentConfig(), nil)
	if err != nil {
		return err
	}
	defer bp.Close()

	res, err := bp.rt.Submit(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "guard: %s\n", bp.rt.Guard().State())
	for _, key := range res.Guard.Blanked {
		fmt.Fprintf(out, "blanked placeholder in %s\n", key)
	}
	if !res.Submitted() {
		fmt.Fprintf(out, "missing required fields: %v\n", res.Invalid)
		return errSubmitPrevented
	}
	printFields(out, res.Fields)
	return nil
}
