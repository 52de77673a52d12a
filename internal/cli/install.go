package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/quasar/mcinstall/internal/api"
	"github.com/quasar/mcinstall/internal/app"
	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/install"
	"github.com/quasar/mcinstall/internal/rules"
)

const (
	latestRelease  = "latest"
	latestSnapshot = "latest-snapshot"
)

func newInstallCmd(e *env) *cobra.Command {
	var (
		tui        bool
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "install <version>",
		Short: "Install a game version",
		Long: `Install a game version into the install root.

  <version>  A version ID such as 1.20.1, or "latest" / "latest-snapshot".

Files that are already present with the expected hash are reused. When some
downloads fail the completed files are kept and the command exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := e.httpClient()

			record, err := resolveVersion(ctx, e.mojang(client), args[0])
			if err != nil {
				return err
			}

			opts, err := e.installOptions()
			if err != nil {
				return err
			}
			opts.HTTPClient = client

			var result *install.Result
			if tui {
				result, err = e.installWithView(ctx, opts, *record)
			} else {
				result, err = install.New(opts, nil).Install(ctx, *record)
			}
			if err != nil {
				return err
			}

			printSummary(cmd, e.cfg.Root, result)

			if err := recordInstall(e.cfg.Root, result); err != nil {
				e.logger.WithError(err).Warn("Could not record install state")
			}

			if reportPath != "" {
				if err := writeReport(reportPath, e.cfg.Root, result); err != nil {
					return err
				}
				e.logger.WithField("path", reportPath).Info("Wrote install report")
			}

			return result.Err()
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&tui, "tui", false, "Show a terminal progress view")
	flags.StringVar(&reportPath, "report", "", "Write a YAML install report to this file")
	flags.Int("pool-size", 0, "Concurrent downloads (1-64)")
	flags.Duration("http-timeout", 0, "Per-request timeout")
	flags.Int("retries", 0, "Retries per request")
	flags.Duration("deadline", 0, "Limit for the whole install, 0 for none")
	flags.String("rule-mode", "", "Rule evaluation mode (legacy, accumulate, last-match)")
	flags.Bool("sort-assets", false, "Download the largest assets first")
	flags.StringSlice("natives-exclude", nil, "Glob patterns skipped when extracting natives")
	e.bind(flags, "pool_size", "pool-size")
	e.bind(flags, "http_timeout", "http-timeout")
	e.bind(flags, "retries", "retries")
	e.bind(flags, "deadline", "deadline")
	e.bind(flags, "rule_mode", "rule-mode")
	e.bind(flags, "sort_assets", "sort-assets")
	e.bind(flags, "natives_exclude", "natives-exclude")

	return cmd
}

// resolveVersion looks up an ID in the manifest, accepting the latest aliases
func resolveVersion(ctx context.Context, client *api.MojangClient, id string) (*core.Version, error) {
	switch id {
	case latestRelease:
		return client.Latest(ctx, core.VersionTypeRelease)
	case latestSnapshot:
		return client.Latest(ctx, core.VersionTypeSnapshot)
	default:
		return client.FindVersion(ctx, id)
	}
}

func (e *env) installOptions() (install.Options, error) {
	mode, err := rules.ParseMode(e.cfg.RuleMode)
	if err != nil {
		return install.Options{}, err
	}

	opts := install.DefaultOptions(e.cfg.Root)
	opts.HTTPTimeout = e.cfg.HTTPTimeout
	opts.PoolSize = e.cfg.PoolSize
	opts.Retries = e.cfg.Retries
	opts.Deadline = e.cfg.Deadline
	opts.RuleMode = mode
	opts.AssetBaseURL = e.cfg.AssetBaseURL
	opts.SortAssetsBySize = e.cfg.SortAssets
	opts.NativesExclude = e.cfg.NativesExclude
	opts.Logger = e.logger
	return opts, nil
}

// installWithView runs the install behind the progress view. Log output
// goes to <root>/logs/mcinstall.log while the view owns the terminal.
func (e *env) installWithView(ctx context.Context, opts install.Options, record core.Version) (*install.Result, error) {
	logDir := filepath.Join(e.cfg.Root, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, core.IOError("creating log directory", logDir, err)
	}
	logFile, err := os.OpenFile(filepath.Join(logDir, "mcinstall.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, core.IOError("opening log file", logDir, err)
	}
	defer logFile.Close()

	out := e.logger.Out
	e.logger.SetOutput(logFile)
	defer e.logger.SetOutput(out)

	statusChan := make(chan install.Status, 64)
	return app.Run(ctx, install.New(opts, statusChan), record, statusChan)
}

func recordInstall(root string, result *install.Result) error {
	r := result.Report
	return core.NewInstallRegistry(root).Record(&core.InstallState{
		ID:          result.Version.ID,
		Type:        result.Version.Type,
		RunID:       result.RunID,
		InstalledAt: result.Started,
		Files:       r.Total(),
		Failed:      len(r.Failed),
		Complete:    len(r.Failed) == 0,
	})
}

func printSummary(cmd *cobra.Command, root string, result *install.Result) {
	r := result.Report
	fmt.Fprintf(cmd.OutOrStdout(), "Installed %s into %s: %d files (%d reused, %d failed), %s downloaded in %s\n",
		result.Version.ID, root, r.Total(), r.Skipped, len(r.Failed),
		humanize.Bytes(uint64(r.Bytes)), result.Duration.Round(time.Millisecond))
}

// installReport is the YAML form of an install result
type installReport struct {
	RunID     string          `yaml:"runId"`
	Version   string          `yaml:"version"`
	Type      string          `yaml:"type"`
	Root      string          `yaml:"root"`
	Started   time.Time       `yaml:"started"`
	Duration  string          `yaml:"duration"`
	Files     int             `yaml:"files"`
	Reused    int             `yaml:"reused"`
	Bytes     int64           `yaml:"bytes"`
	Natives   []string        `yaml:"natives,omitempty"`
	Failures  []reportFailure `yaml:"failures,omitempty"`
	Succeeded bool            `yaml:"succeeded"`
}

type reportFailure struct {
	URL   string `yaml:"url"`
	Path  string `yaml:"path"`
	Error string `yaml:"error"`
}

func newInstallReport(root string, result *install.Result) installReport {
	r := result.Report
	report := installReport{
		RunID:     result.RunID,
		Version:   result.Version.ID,
		Type:      string(result.Version.Type),
		Root:      root,
		Started:   result.Started,
		Duration:  result.Duration.String(),
		Files:     r.Total(),
		Reused:    r.Skipped,
		Bytes:     r.Bytes,
		Natives:   result.Natives,
		Succeeded: len(r.Failed) == 0,
	}
	for _, f := range r.Failed {
		report.Failures = append(report.Failures, reportFailure{
			URL:   f.Task.URL,
			Path:  f.Task.Path,
			Error: f.Err.Error(),
		})
	}
	return report
}

func writeReport(path, root string, result *install.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return core.IOError("creating install report", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	if err := enc.Encode(newInstallReport(root, result)); err != nil {
		return fmt.Errorf("encoding install report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding install report: %w", err)
	}
	return nil
}
