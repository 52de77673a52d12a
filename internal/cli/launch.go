package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/java"
	"github.com/quasar/mcinstall/internal/launch"
	"github.com/quasar/mcinstall/internal/rules"
)

func newLaunchCmd(e *env) *cobra.Command {
	var (
		javaPath string
		player   string
		playerID string
		gameDir  string
		jvmArgs  []string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "launch <version>",
		Short: "Start an installed version in offline mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := rules.ParseMode(e.cfg.RuleMode)
			if err != nil {
				return err
			}

			reg := core.NewInstallRegistry(e.cfg.Root)
			if err := reg.Load(); err != nil {
				return err
			}
			if state, ok := reg.Get(args[0]); ok && !state.Complete {
				e.logger.Warnf("Last install of %s had %d failed downloads, run install again to repair it", args[0], state.Failed)
			}

			plan, err := launch.NewPlan(e.cfg.Root, args[0], core.CurrentPlatform(), mode)
			if err != nil {
				return err
			}

			if javaPath == "" {
				required := plan.Version.JavaVersion.MajorVersion
				inst, err := java.NewDetector(java.WithLogger(e.logger)).Select(cmd.Context(), required)
				if err != nil {
					return err
				}
				e.logger.Infof("Using %s", inst)
				javaPath = inst.Path
			}

			if playerID == "" {
				// Offline players get a stable ID derived from the name
				playerID = uuid.NewMD5(uuid.NameSpaceOID, []byte("OfflinePlayer:"+player)).String()
			}
			opts := launch.Options{
				Identity: launch.Identity{PlayerName: player, UUID: playerID},
				GameDir:  gameDir,
				JVMArgs:  jvmArgs,
			}

			if dryRun {
				c := plan.Command(cmd.Context(), javaPath, opts)
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(c.Args, " "))
				return nil
			}
			return launch.NewLauncher(e.logger).Run(cmd.Context(), plan, javaPath, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&javaPath, "java", "", "Java executable (detected from the version's requirement when empty)")
	flags.StringVarP(&player, "player", "p", "Player", "Offline player name")
	flags.StringVar(&playerID, "uuid", "", "Player UUID (derived from the name when empty)")
	flags.StringVar(&gameDir, "game-dir", "", "Game directory (defaults to the install root)")
	flags.StringArrayVar(&jvmArgs, "jvm-arg", nil, "Extra JVM argument, repeatable")
	flags.BoolVar(&dryRun, "dry-run", false, "Print the java command instead of running it")

	return cmd
}
