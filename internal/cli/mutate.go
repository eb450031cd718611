package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/store"
)

// Created is the payload of every create command.
type Created struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Updated is the payload of update and delete commands.
type Updated struct {
	Kind   string `json:"kind"`
	ID     int64  `json:"id"`
	Action string `json:"action"`
}

func (o *RootOptions) created(kind store.Kind, id int64, name string) error {
	return o.Out.Success(Created{Kind: string(kind), ID: id, Name: name}, func(w io.Writer) error {
		_, err := fmt.Fprint(w, pterm.Success.Sprintf("Created %s %d %s\n", kind, id, name))
		return err
	})
}

func (o *RootOptions) updated(kind store.Kind, id int64, action string) error {
	return o.Out.Success(Updated{Kind: string(kind), ID: id, Action: action}, func(w io.Writer) error {
		_, err := fmt.Fprint(w, pterm.Success.Sprintf("%s %s %d\n", action, kind, id))
		return err
	})
}

// NewInitDBCommand creates the init-db command.
func NewInitDBCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the database schema",
		Long: `Create the database and its schema if they do not exist.

Every other command also initializes the schema on first use; init-db only
makes it explicit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				counts, err := eng.Reader().Counts(ctx)
				if err != nil {
					return err
				}
				data := map[string]any{
					"database": opts.Config.Database.Redacted(),
					"driver":   opts.Config.Store().Driver,
					"counts":   countsByTable(counts),
				}
				return opts.Out.Success(data, func(w io.Writer) error {
					_, err := fmt.Fprint(w, pterm.Success.Sprintf("Initialized database %s\n", opts.Config.Database.Redacted()))
					return err
				})
			})
		},
	}
}

// NewAddSystemCommand creates the add-system command.
func NewAddSystemCommand(opts *RootOptions) *cobra.Command {
	var root int64
	cmd := &cobra.Command{
		Use:   "add-system <name>",
		Short: "Create a system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				id, err := eng.CreateSystem(ctx, args[0], optionalID(cmd, "root", root))
				if err != nil {
					return err
				}
				return opts.created(store.KindSystem, id, args[0])
			})
		},
	}
	cmd.Flags().Int64Var(&root, "root", 0, "root assembly id (a top-level assembly of this system)")
	return cmd
}

// NewSetRootCommand creates the set-root command.
func NewSetRootCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-root <system-id> <assembly-id>",
		Short: "Point a system at its root assembly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			systemID, err := parseID(args[0], "system id")
			if err != nil {
				return err
			}
			assemblyID, err := parseID(args[1], "assembly id")
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				if err := eng.SetSystemRoot(ctx, systemID, assemblyID); err != nil {
					return err
				}
				return opts.updated(store.KindSystem, systemID, "Updated root of")
			})
		},
	}
}

// NewAddPartCommand creates the add-part command.
func NewAddPartCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-part <name> <file-location>",
		Short: "Create a part",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				id, err := eng.CreatePart(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return opts.created(store.KindPart, id, args[0])
			})
		},
	}
}

// NewAddFeatureCommand creates the add-feature command.
func NewAddFeatureCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-feature <part-id> <name>",
		Short: "Create a feature on a part",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			partID, err := parseID(args[0], "part id")
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				id, err := eng.CreateFeature(ctx, partID, args[1])
				if err != nil {
					return err
				}
				return opts.created(store.KindFeature, id, args[1])
			})
		},
	}
}

// NewAddAssemblyCommand creates the add-assembly command.
func NewAddAssemblyCommand(opts *RootOptions) *cobra.Command {
	var (
		image          string
		system, parent int64
	)
	cmd := &cobra.Command{
		Use:   "add-assembly <name> <file-location>",
		Short: "Create an assembly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				id, err := eng.CreateAssembly(ctx, assembly.NewAssembly{
					Name:             args[0],
					FileLocation:     args[1],
					Image:            image,
					SystemID:         optionalID(cmd, "system", system),
					ParentAssemblyID: optionalID(cmd, "parent", parent),
				})
				if err != nil {
					return err
				}
				return opts.created(store.KindAssembly, id, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "preview image path")
	cmd.Flags().Int64Var(&system, "system", 0, "owning system id")
	cmd.Flags().Int64Var(&parent, "parent", 0, "parent assembly id")
	return cmd
}

// NewSetParentCommand creates the set-parent command.
func NewSetParentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-parent <assembly-id> [parent-id]",
		Short: "Set or clear an assembly's parent",
		Long: `Set an assembly's parent. Omitting parent-id makes the assembly top-level.

Setting a parent is rejected with CYCLE when the parent is already
contained in the assembly's sub-tree.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "assembly id")
			if err != nil {
				return err
			}
			var parent *int64
			if len(args) == 2 {
				p, err := parseID(args[1], "parent id")
				if err != nil {
					return err
				}
				parent = &p
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				if err := eng.SetAssemblyParent(ctx, id, parent); err != nil {
					return err
				}
				action := "Set parent of"
				if parent == nil {
					action = "Cleared parent of"
				}
				return opts.updated(store.KindAssembly, id, action)
			})
		},
	}
}

// NewAddAssemblyItemCommand creates the add-assembly-item command.
func NewAddAssemblyItemCommand(opts *RootOptions) *cobra.Command {
	var part, sub int64
	cmd := &cobra.Command{
		Use:   "add-assembly-item <assembly-id> <instance-name> (--part <id> | --sub-assembly <id>)",
		Short: "Instantiate a part or sub-assembly inside an assembly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assemblyID, err := parseID(args[0], "assembly id")
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				id, err := eng.CreateAssemblyItem(ctx, assembly.NewItem{
					AssemblyID:    assemblyID,
					PartID:        optionalID(cmd, "part", part),
					SubAssemblyID: optionalID(cmd, "sub-assembly", sub),
					InstanceName:  args[1],
				})
				if err != nil {
					return err
				}
				return opts.created(store.KindItem, id, args[1])
			})
		},
	}
	cmd.Flags().Int64Var(&part, "part", 0, "part id to instantiate")
	cmd.Flags().Int64Var(&sub, "sub-assembly", 0, "assembly id to instantiate")
	return cmd
}

// NewCreateConnectorCommand creates the create-connector command.
func NewCreateConnectorCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create-connector <type> <feature1-id> <item1-id> <feature2-id> <item2-id>",
		Short: "Connect two instance features",
		Long: `Connect feature1 on item1 to feature2 on item2.

type is one of coincident, concentric, tangent, fixed. Each feature must
belong to the part its item instantiates.`,
		Args: cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 4)
			names := []string{"feature1 id", "item1 id", "feature2 id", "item2 id"}
			for i := range ids {
				id, err := parseID(args[i+1], names[i])
				if err != nil {
					return err
				}
				ids[i] = id
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				id, err := eng.CreateConnector(ctx, assembly.NewConnector{
					Type:       args[0],
					Feature1ID: ids[0],
					Item1ID:    ids[1],
					Feature2ID: ids[2],
					Item2ID:    ids[3],
				})
				if err != nil {
					return err
				}
				return opts.created(store.KindConnector, id, args[0])
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete a record",
		Long: `Delete a system, assembly, part, feature, item or connector.

Deletes are refused with CONFLICT while other records depend on the target.
Features of a deleted part, items of a deleted assembly and connectors of a
deleted item are removed with it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := store.ParseKind(args[0])
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown kind %q", args[0]))
			}
			id, err := parseID(args[1], "id")
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				if err := eng.Delete(ctx, kind, id); err != nil {
					return err
				}
				return opts.updated(kind, id, "Deleted")
			})
		},
	}
}

func countsByTable(counts map[store.Kind]int64) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for k, n := range counts {
		out[k.Table()] = n
	}
	return out
}
