package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quasar/mcinstall/internal/core"
)

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List versions installed under the root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := core.NewInstallRegistry(e.cfg.Root)
			if err := reg.Load(); err != nil {
				return err
			}

			installs := reg.List()
			if len(installs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No versions installed in %s\n", e.cfg.Root)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tINSTALLED\tFILES\tSTATUS")
			for _, s := range installs {
				status := "complete"
				if !s.Complete {
					status = fmt.Sprintf("incomplete (%d failed)", s.Failed)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Type, humanize.Time(s.InstalledAt), s.Files, status)
			}
			return w.Flush()
		},
	}
}

func newRemoveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <version>",
		Short: "Remove an installed version",
		Long: `Remove versions/<version> from the install root. Libraries and assets
are shared between versions and are kept. Only versions recorded by install
can be removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := core.NewInstallRegistry(e.cfg.Root)
			if err := reg.Load(); err != nil {
				return err
			}
			if err := reg.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}
