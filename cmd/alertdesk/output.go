package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"alertdesk/internal/page"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
)

func printSummary(w io.Writer, name string, s page.Summary) {
	fmt.Fprintln(w, headingStyle.Render(name))

	fmt.Fprintf(w, "  triggers (%d)\n", len(s.Triggers))
	for _, t := range s.Triggers {
		fmt.Fprintf(w, "    cid=%-8s target=#%-16s state=%s last=%s\n", t.CacheID, t.TargetID, t.State, t.Last)
	}

	fmt.Fprintf(w, "  toggles (%d)\n", len(s.Toggles))
	for _, t := range s.Toggles {
		fmt.Fprintf(w, "    %s == %q -> %s visible=%v (%s)\n", t.Source, t.Match, t.Target, t.Visible, t.Origin)
	}

	if s.Form == nil {
		fmt.Fprintln(w, "  form: none")
	} else {
		fmt.Fprintf(w, "  form: %s autocomplete=%v state=%s\n", s.Form.Form, s.Form.Autocomplete, s.Form.State)
	}

	for _, warning := range s.Warnings {
		fmt.Fprintln(w, warnStyle.Render("  warning: "+warning))
	}
}

func printFields(w io.Writer, fields []page.Field) {
	width := 0
	for _, f := range fields {
		if len(f.Name) > width {
			width = len(f.Name)
		}
	}
	for _, f := range fields {
		fmt.Fprintf(w, "  %s%s = %q\n", f.Name, strings.Repeat(" ", width-len(f.Name)), f.Value)
	}
}
