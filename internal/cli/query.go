package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/model"
)

// NewListPartsCommand creates the list-parts command.
func NewListPartsCommand(opts *RootOptions) *cobra.Command {
	var noRecursive bool
	cmd := &cobra.Command{
		Use:   "list-parts <assembly-id>",
		Short: "List the part instances of an assembly",
		Long: `List every part instance reachable from an assembly.

Sub-assemblies are expanded recursively unless --no-recursive is given.
Each row carries the instance path from the queried assembly, joined by
query.separator.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "assembly id")
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				parts, err := eng.ListPartsInAssembly(ctx, id, !noRecursive)
				if err != nil {
					return err
				}
				return opts.Out.Success(parts, func(w io.Writer) error {
					rows := make([][]string, 0, len(parts))
					for _, p := range parts {
						rows = append(rows, []string{p.InstancePath, p.PartName, itoa(p.PartID), p.PartFileLocation, itoa(p.ItemID)})
					}
					return renderTable(w, []string{"INSTANCE", "PART", "PART ID", "FILE", "ITEM ID"}, rows, "No parts.")
				})
			})
		},
	}
	cmd.Flags().BoolVar(&noRecursive, "no-recursive", false, "list only direct part instances")
	return cmd
}

// NewListFeaturesCommand creates the list-features command.
func NewListFeaturesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-features <part-id>",
		Short: "List the features of a part",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "part id")
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				features, err := eng.ListFeatures(ctx, id)
				if err != nil {
					return err
				}
				return opts.Out.Success(features, func(w io.Writer) error {
					rows := make([][]string, 0, len(features))
					for _, f := range features {
						rows = append(rows, []string{itoa(f.ID), f.Name})
					}
					return renderTable(w, []string{"ID", "NAME"}, rows, "No features.")
				})
			})
		},
	}
}

// NewListConnectionsCommand creates the list-connections command.
func NewListConnectionsCommand(opts *RootOptions) *cobra.Command {
	var part, feature, item int64
	cmd := &cobra.Command{
		Use:   "list-connections (--part <id> | --feature <id> | --item <id>)",
		Short: "List connectors touching a part, feature or item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := assembly.ConnectionFilter{
				PartID:    optionalID(cmd, "part", part),
				FeatureID: optionalID(cmd, "feature", feature),
				ItemID:    optionalID(cmd, "item", item),
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				conns, err := eng.ListConnections(ctx, filter)
				if err != nil {
					return err
				}
				return opts.Out.Success(conns, func(w io.Writer) error {
					return renderTable(w, []string{"ID", "TYPE", "FEATURE 1", "ITEM 1", "FEATURE 2", "ITEM 2"},
						connectorRows(conns), "No connections.")
				})
			})
		},
	}
	cmd.Flags().Int64Var(&part, "part", 0, "part id")
	cmd.Flags().Int64Var(&feature, "feature", 0, "feature id")
	cmd.Flags().Int64Var(&item, "item", 0, "assembly item id")
	cmd.MarkFlagsMutuallyExclusive("part", "feature", "item")
	cmd.MarkFlagsOneRequired("part", "feature", "item")
	return cmd
}

func connectorRows(conns []model.Connector) [][]string {
	rows := make([][]string, 0, len(conns))
	for _, c := range conns {
		rows = append(rows, []string{
			itoa(c.ID), string(c.Type),
			itoa(c.Feature1ID), itoa(c.AssemblyItem1ID),
			itoa(c.Feature2ID), itoa(c.AssemblyItem2ID),
		})
	}
	return rows
}

// NewListSystemsCommand creates the list-systems command.
func NewListSystemsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-systems",
		Short: "List systems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				systems, err := eng.ListSystems(ctx)
				if err != nil {
					return err
				}
				return opts.Out.Success(systems, func(w io.Writer) error {
					rows := make([][]string, 0, len(systems))
					for _, s := range systems {
						rows = append(rows, []string{itoa(s.ID), s.Name, optItoa(s.OverallAssemblyID)})
					}
					return renderTable(w, []string{"ID", "NAME", "ROOT ASSEMBLY"}, rows, "No systems.")
				})
			})
		},
	}
}

// NewListAssembliesCommand creates the list-assemblies command.
func NewListAssembliesCommand(opts *RootOptions) *cobra.Command {
	var system int64
	cmd := &cobra.Command{
		Use:   "list-assemblies",
		Short: "List assemblies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				asms, err := eng.ListAssemblies(ctx, optionalID(cmd, "system", system))
				if err != nil {
					return err
				}
				return opts.Out.Success(asms, func(w io.Writer) error {
					rows := make([][]string, 0, len(asms))
					for _, a := range asms {
						rows = append(rows, []string{itoa(a.ID), a.Name, a.FileLocation, optItoa(a.SystemID), optItoa(a.ParentAssemblyID)})
					}
					return renderTable(w, []string{"ID", "NAME", "FILE", "SYSTEM", "PARENT"}, rows, "No assemblies.")
				})
			})
		},
	}
	cmd.Flags().Int64Var(&system, "system", 0, "only assemblies of this system")
	return cmd
}

// NewShowAssemblyCommand creates the show-assembly command.
func NewShowAssemblyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show-assembly <assembly-id>",
		Short: "Print the full hierarchy under an assembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "assembly id")
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, eng *assembly.Engine) error {
				tree, err := eng.GetAssemblyHierarchy(ctx, id)
				if err != nil {
					return err
				}
				return opts.Out.Success(tree, func(w io.Writer) error {
					return renderHierarchy(w, tree)
				})
			})
		},
	}
}
