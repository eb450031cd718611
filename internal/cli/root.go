package cli

import (
	"context"
	"io"
	"os"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/config"
	"github.com/roach88/sysarch/internal/logging"
	"github.com/roach88/sysarch/internal/store"
)

// RootOptions holds global flags for all commands, and the configuration
// and logger resolved from them before a command runs.
type RootOptions struct {
	ConfigFile string
	Database   string
	Driver     string
	DSN        string
	Verbose    bool
	LogJSON    bool
	Format     string // "json" | "text"

	Config *config.Config
	Log    *zap.SugaredLogger
	Out    *OutputFormatter
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sysarch CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

func newRoot() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{Log: logging.Nop()}

	cmd := &cobra.Command{
		Use:   "sysarch",
		Short: "sysarch - hierarchical mechanical assembly modeling",
		Long: `Model mechanical systems as assemblies of part instances and nested
sub-assemblies, joined by typed connectors between part features.

Every mutation is validated (no assembly may contain itself, connector
features must belong to the instantiated part) and runs in one transaction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default: ./sysarch.toml if present)")
	flags.StringVar(&opts.Database, "db", "", "SQLite database path (overrides database.path)")
	flags.StringVar(&opts.Driver, "driver", "", "database driver: sqlite|postgres (overrides database.driver)")
	flags.StringVar(&opts.DSN, "dsn", "", "Postgres DSN (overrides database.dsn)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	flags.BoolVar(&opts.LogJSON, "log-json", false, "JSON log output on stderr")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		NewInitDBCommand(opts),
		NewAddSystemCommand(opts),
		NewSetRootCommand(opts),
		NewAddPartCommand(opts),
		NewAddFeatureCommand(opts),
		NewAddAssemblyCommand(opts),
		NewSetParentCommand(opts),
		NewAddAssemblyItemCommand(opts),
		NewCreateConnectorCommand(opts),
		NewDeleteCommand(opts),
		NewListPartsCommand(opts),
		NewListFeaturesCommand(opts),
		NewListConnectionsCommand(opts),
		NewListSystemsCommand(opts),
		NewListAssembliesCommand(opts),
		NewShowAssemblyCommand(opts),
		NewCheckCommand(opts),
		NewApplyCommand(opts),
		NewTestCommand(opts),
	)

	return cmd, opts
}

// setup validates flags, resolves configuration and builds the logger.
// Flags override the config file and environment.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	o.Out = &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
		TraceID:   newTraceID(),
	}
	if !isValidFormat(o.Format) {
		o.Out.Format = "text"
		return NewExitError(ExitCommandError, "invalid format "+o.Format+": must be one of text, json")
	}

	v, err := config.New(o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"database.path":   "db",
		"database.driver": "driver",
		"database.dsn":    "dsn",
		"log.json":        "log-json",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
	if o.Verbose {
		v.Set("log.level", "debug")
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		JSON:   cfg.Log.JSON,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "build logger", err)
	}
	o.Log = log.With("trace_id", o.Out.TraceID)
	return nil
}

// openEngine opens the configured store and wraps it in an Engine.
// The caller closes the store.
func (o *RootOptions) openEngine(ctx context.Context) (*assembly.Engine, *store.Store, error) {
	st, err := store.OpenWithConfig(ctx, o.Config.Store(), o.Log)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError,
			"open database "+o.Config.Database.Redacted(), err)
	}
	eng := assembly.New(st,
		assembly.WithLogger(o.Log),
		assembly.WithSeparator(o.Config.Query.Separator),
	)
	return eng, st, nil
}

// withEngine runs fn against an open engine and closes the store afterwards.
func (o *RootOptions) withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *assembly.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	eng, st, err := o.openEngine(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, eng)
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported on out (JSON) or errOut (text).
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	cmd, opts := newRoot()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		opts.Log.Debugw("Command finished with failures", "error", err)
		return exitErr.Code
	}

	f := opts.Out
	if f == nil {
		// Cobra rejected the arguments before setup ran.
		f = &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}
		if slices.Contains(args, "--format=json") || hasFlagValue(args, "--format", "json") {
			f.Format = "json"
		}
		err = WrapExitError(ExitCommandError, "usage", err)
	}
	if printErr := f.Error(err); printErr != nil {
		opts.Log.Errorw("Failed to write error", "error", printErr)
	}
	return GetExitCode(err)
}

// Main is the entry point used by cmd/sysarch.
func Main() int {
	return Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func hasFlagValue(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func newTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
