package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/manifest"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply <manifest.cue>",
		Short: "Create a whole system from a CUE manifest",
		Long: `Create the parts, features, assemblies, items and connectors a CUE
manifest declares, in one transaction.

A malformed manifest or a dangling name exits with code 2. A manifest the
core rejects (for example a composition cycle) exits with code 1 and
leaves the database untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load manifest", err)
			}
			if dryRun {
				summary := map[string]any{
					"parts":      m.PartNames(),
					"assemblies": m.AssemblyNames(),
					"connectors": len(m.Connectors),
				}
				return opts.Out.Success(summary, func(w io.Writer) error {
					_, err := fmt.Fprint(w, pterm.Success.Sprintf("Manifest %s is valid: %d part(s), %d assembly(ies), %d connector(s)\n",
						args[0], len(m.Parts), len(m.Assemblies), len(m.Connectors)))
					return err
				})
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				applied, err := manifest.Apply(ctx, eng, m)
				if err != nil {
					if errors.Is(err, manifest.ErrUnresolved) {
						return WrapExitError(ExitCommandError, "apply manifest", err)
					}
					return err
				}
				return opts.Out.Success(applied, func(w io.Writer) error {
					_, err := fmt.Fprint(w, pterm.Success.Sprintf("Applied %s: %d part(s), %d feature(s), %d assembly(ies), %d item(s), %d connector(s)\n",
						args[0], len(applied.Parts), len(applied.Features), len(applied.Assemblies),
						len(applied.Items), len(applied.Connectors)))
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the manifest without touching the database")
	return cmd
}
