package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModulesCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List discovered modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			modules := rt.svc.ListModules()
			if g.json {
				return g.printJSON(cmd.OutOrStdout(), modules)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tIMPLEMENTATION")
			for _, m := range modules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Category, m.Implementation)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			for _, problem := range rt.svc.DiscoveryProblems() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", problem)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "settings <module-id>",
		Short: "Show a module's settings and defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			views, err := rt.svc.GetModuleSettings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if g.json {
				return g.printJSON(cmd.OutOrStdout(), views)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tKIND\tPERSISTENCE\tVALUE")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Key, v.Kind, v.Persistence, v.Value.String())
			}
			return w.Flush()
		},
	})
	return cmd
}

func newRootsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roots",
		Short: "Manage plugin search roots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the directories searched for modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			roots := cfg.SearchRoots()
			if g.json {
				return g.printJSON(cmd.OutOrStdout(), roots)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(roots, "\n"))
			return nil
		},
	}, &cobra.Command{
		Use:   "add <dir>",
		Short: "Add a plugin search root to .focus/config.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := cfg.AddSearchRoot(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", dir)
			return nil
		},
	})
	return cmd
}
