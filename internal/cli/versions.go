package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quasar/mcinstall/internal/api"
)

func newVersionsCmd(e *env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List installable versions",
		Long: `List the versions published in the version manifest, newest first.
Release versions are shown by default; enable other types with the flags below.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.cfg.Filters
			filter := api.Filter{
				Release:    f.Release,
				Snapshot:   f.Snapshot,
				OldBeta:    f.OldBeta,
				OldAlpha:   f.OldAlpha,
				Constraint: f.Constraint,
			}

			versions, err := e.mojang(e.httpClient()).FetchCatalog(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if limit > 0 && len(versions) > limit {
				versions = versions[:limit]
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tRELEASED")
			for _, v := range versions {
				released := "-"
				if !v.ReleaseTime.IsZero() {
					released = humanize.Time(v.ReleaseTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, v.Type, released)
			}
			return w.Flush()
		},
	}

	flags := cmd.Flags()
	flags.Bool("release", true, "Include releases")
	flags.Bool("snapshot", false, "Include snapshots")
	flags.Bool("old-beta", false, "Include old betas")
	flags.Bool("old-alpha", false, "Include old alphas")
	flags.String("constraint", "", `Semver constraint on version IDs, e.g. ">=1.13"`)
	flags.IntVarP(&limit, "limit", "n", 0, "Show at most n versions")
	e.bind(flags, "filters.release", "release")
	e.bind(flags, "filters.snapshot", "snapshot")
	e.bind(flags, "filters.old_beta", "old-beta")
	e.bind(flags, "filters.old_alpha", "old-alpha")
	e.bind(flags, "filters.constraint", "constraint")

	return cmd
}
