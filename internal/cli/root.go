// Package cli implements the mcinstall command line.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/quasar/mcinstall/internal/api"
	"github.com/quasar/mcinstall/internal/config"
	"github.com/quasar/mcinstall/internal/httpclient"
	"github.com/quasar/mcinstall/internal/logging"
)

// env carries the loaded configuration to subcommands
type env struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *logrus.Logger
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	e := &env{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "mcinstall",
		Short: "Install Minecraft versions from the official manifests",
		Long: `mcinstall downloads a game version (client jar, libraries, natives and
assets) into a launcher-compatible directory and can start it afterwards.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&e.configFile, "config", "c", "", "Path to configuration file (yaml, json or toml)")
	flags.String("root", "", "Install root directory")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")
	e.bind(flags, "root", "root")
	e.bind(flags, "logging.level", "log-level")
	e.bind(flags, "logging.format", "log-format")

	rootCmd.AddCommand(
		newVersionsCmd(e),
		newInstallCmd(e),
		newLaunchCmd(e),
		newListCmd(e),
		newRemoveCmd(e),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// bind maps a flag onto a config key. Unset flags fall through to the
// file, environment and defaults.
func (e *env) bind(flags *pflag.FlagSet, key, name string) {
	if err := e.v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", name, err))
	}
}

func (e *env) load(cmd *cobra.Command) error {
	cfg, err := config.Load(e.v, e.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	e.cfg = cfg
	e.logger = logging.NewWithOutput(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	e.logger.WithField("config_file", e.configFile).Debugf("Using install root %s", cfg.Root)
	return nil
}

func (e *env) httpClient() *http.Client {
	opts := httpclient.DefaultOptions()
	opts.Timeout = e.cfg.HTTPTimeout
	opts.RetryMax = e.cfg.Retries
	opts.Logger = e.logger
	return httpclient.New(opts)
}

func (e *env) mojang(client *http.Client) *api.MojangClient {
	return api.NewMojangClient(
		api.WithManifestURL(e.cfg.ManifestURL),
		api.WithHTTPClient(client),
		api.WithLogger(e.logger),
	)
}
