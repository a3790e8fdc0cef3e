package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kingrea/focus/internal/preset"
)

func newPresetsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "presets",
		Aliases: []string{"preset"},
		Short:   "Manage presets",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved presets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := g.open(cmd)
				if err != nil {
					return err
				}
				defer rt.Close()
				presets, _ := rt.svc.ListPresets()
				if g.json {
					return g.printJSON(cmd.OutOrStdout(), presets)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tMODULES")
				for _, p := range presets {
					fmt.Fprintf(w, "%s\t%s\t%d\n", p.ID, p.Name, len(p.Modules))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a preset document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := g.open(cmd)
				if err != nil {
					return err
				}
				defer rt.Close()
				p, err := rt.svc.GetPreset(args[0])
				if err != nil {
					return err
				}
				data, err := preset.Encode(p)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			},
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Save a preset document, upgrading older versions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				p, err := preset.Decode(data)
				if err != nil {
					return err
				}
				rt, err := g.open(cmd)
				if err != nil {
					return err
				}
				defer rt.Close()
				saved, err := rt.svc.SavePreset(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved preset %s\n", saved.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := g.open(cmd)
				if err != nil {
					return err
				}
				defer rt.Close()
				if err := rt.svc.DeletePreset(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted preset %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
