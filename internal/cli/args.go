package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/sysarch/internal/model"
)

// parseID parses a positional identifier argument.
func parseID(arg, name string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError,
			fmt.Sprintf("invalid %s %q: must be a positive integer", name, arg))
	}
	return id, nil
}

// optionalID returns v when the flag was given on the command line.
func optionalID(cmd *cobra.Command, flag string, v int64) *int64 {
	if cmd.Flags().Changed(flag) {
		return model.ID(v)
	}
	return nil
}
