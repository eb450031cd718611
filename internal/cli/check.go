package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/roach88/sysarch/internal/assembly"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Audit the database for integrity issues",
		Long: `Scan the whole database for composition cycles, connectors whose
features no longer match their items, and instance names used twice in
one assembly.

Findings are reported, never repaired. Exit code 1 means issues were found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				report, err := eng.Audit(ctx)
				if err != nil {
					return err
				}
				if err := opts.Out.Success(report, func(w io.Writer) error {
					return renderAudit(w, report)
				}); err != nil {
					return err
				}
				if !report.Clean() {
					return newReportedError(ExitFailure, fmt.Sprintf("%d integrity issue(s) found", report.Issues()))
				}
				return nil
			})
		},
	}
}

func renderAudit(w io.Writer, report *assembly.AuditReport) error {
	if report.Clean() {
		_, err := fmt.Fprint(w, pterm.Success.Sprintln("No integrity issues"))
		return err
	}
	var b strings.Builder
	for _, c := range report.Cycles {
		b.WriteString(pterm.Error.Sprintln(c.Message))
	}
	for _, s := range report.StaleConnectors {
		b.WriteString(pterm.Error.Sprintf("connector %d (%s): %s\n", s.ConnectorID, s.Kind, s.Reason))
	}
	for _, d := range report.DuplicateInstances {
		b.WriteString(pterm.Warning.Sprintf("assembly %d: instance name %q used by items %v\n",
			d.AssemblyID, d.InstanceName, d.ItemIDs))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
