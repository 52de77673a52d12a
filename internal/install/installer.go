// Package install runs the installation pipeline for a single game version:
// descriptor, client jar, libraries, natives and assets.
package install

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quasar/mcinstall/internal/api"
	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/download"
	"github.com/quasar/mcinstall/internal/httpclient"
	"github.com/quasar/mcinstall/internal/rules"
)

const DefaultAssetBaseURL = "https://resources.download.minecraft.net"

// Step names, in the order Install reports them
const (
	StepPrepare    = "Preparing directories"
	StepDescriptor = "Fetching version descriptor"
	StepLibraries  = "Resolving libraries"
	StepAssetIndex = "Fetching asset index"
	StepDownload   = "Downloading files"
	StepComplete   = "Complete"
)

// Steps lists the pipeline steps for progress views
var Steps = []string{StepPrepare, StepDescriptor, StepLibraries, StepAssetIndex, StepDownload}

// Status represents the current install step
type Status struct {
	Step       string  // Current step name
	Progress   float64 // 0.0 - 1.0
	Message    string  // Human-readable message
	IsComplete bool
	Error      error
	Download   *download.Progress // set while files are transferring
}

// Options contains install configuration
type Options struct {
	Root             string
	HTTPTimeout      time.Duration
	PoolSize         int
	Retries          int
	Deadline         time.Duration // limit for the whole run, 0 = none
	Platform         core.Platform
	RuleMode         rules.Mode
	AssetBaseURL     string
	SortAssetsBySize bool
	NativesExclude   []string // glob patterns applied to every native archive
	Logger           logrus.FieldLogger

	// HTTPClient replaces the client built from HTTPTimeout and Retries
	HTTPClient *http.Client
}

// DefaultOptions returns options for the running platform
func DefaultOptions(root string) Options {
	return Options{
		Root:         root,
		HTTPTimeout:  5 * time.Minute,
		PoolSize:     8,
		Retries:      3,
		Platform:     core.CurrentPlatform(),
		RuleMode:     rules.ModeLegacy,
		AssetBaseURL: DefaultAssetBaseURL,
	}
}

// Installer manages the install process
type Installer struct {
	opts       Options
	layout     core.Layout
	client     *api.MojangClient
	downloader *download.Manager
	logger     logrus.FieldLogger
	statusChan chan<- Status
}

// New creates an installer. statusChan may be nil.
func New(opts Options, statusChan chan<- Status) *Installer {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.AssetBaseURL == "" {
		opts.AssetBaseURL = DefaultAssetBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpOpts := httpclient.DefaultOptions()
		if opts.HTTPTimeout > 0 {
			httpOpts.Timeout = opts.HTTPTimeout
		}
		httpOpts.RetryMax = opts.Retries
		httpOpts.Logger = opts.Logger
		httpClient = httpclient.New(httpOpts)
	}

	return &Installer{
		opts:   opts,
		layout: core.NewLayout(opts.Root),
		client: api.NewMojangClient(api.WithHTTPClient(httpClient), api.WithLogger(opts.Logger)),
		downloader: download.NewManager(opts.PoolSize,
			download.WithHTTPClient(httpClient),
			download.WithLogger(opts.Logger),
		),
		logger:     opts.Logger,
		statusChan: statusChan,
	}
}

// run carries state between the steps of one Install call
type run struct {
	record  core.Version
	logger  logrus.FieldLogger
	details *core.VersionDetails
	index   *core.AssetIndex
	tasks   []download.Task
	natives nativeSink
	report  *download.Report
}

// Install executes the full pipeline for record. The error return covers
// failures before any file download starts; per-file failures are reported
// through Result.Err.
func (i *Installer) Install(ctx context.Context, record core.Version) (*Result, error) {
	if i.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.opts.Deadline)
		defer cancel()
	}

	result := &Result{
		RunID:   uuid.New().String(),
		Version: record,
		Started: time.Now(),
	}
	r := &run{
		record: record,
		logger: i.logger.WithFields(logrus.Fields{"run_id": result.RunID, "version": record.ID}),
	}

	steps := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{StepPrepare, i.prepareRoot},
		{StepDescriptor, i.fetchDescriptor},
		{StepLibraries, i.resolveLibraries},
		{StepAssetIndex, i.fetchAssetIndex},
		{StepDownload, i.downloadFiles},
	}

	r.logger.Infof("Installing %s into %s", record.ID, i.opts.Root)

	for n, step := range steps {
		i.sendStatus(Status{
			Step:     step.name,
			Progress: float64(n) / float64(len(steps)),
			Message:  step.name + "...",
		})

		if err := step.fn(ctx, r); err != nil {
			i.sendStatus(Status{
				Step:    step.name,
				Message: err.Error(),
				Error:   err,
			})
			r.logger.WithError(err).Errorf("%s failed", step.name)
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	result.Descriptor = r.details
	result.Report = r.report
	result.Natives = r.natives.sorted()
	result.Duration = time.Since(result.Started)

	final := Status{
		Step:       StepComplete,
		Progress:   1.0,
		Message:    fmt.Sprintf("Installed %s", record.ID),
		IsComplete: true,
	}
	if err := result.Err(); err != nil {
		final.Message = err.Error()
		final.Error = err
		r.logger.WithError(err).Warn("Install finished with failures")
	} else {
		r.logger.Infof("Installed %s (%d files, %d reused)", record.ID, r.report.Total(), r.report.Skipped)
	}
	i.sendStatus(final)

	return result, nil
}

func (i *Installer) sendStatus(s Status) {
	if i.statusChan != nil {
		select {
		case i.statusChan <- s:
		default:
		}
	}
}

func (i *Installer) prepareRoot(ctx context.Context, r *run) error {
	if err := os.MkdirAll(i.opts.Root, 0755); err != nil {
		return core.IOError("creating install root", i.opts.Root, err)
	}
	return nil
}

func (i *Installer) fetchDescriptor(ctx context.Context, r *run) error {
	details, err := i.client.FetchDescriptor(ctx, r.record, i.opts.Root)
	if err != nil {
		return err
	}
	r.details = details
	r.tasks = append(r.tasks, clientTask(i.layout, r.record.ID, details))
	return nil
}

func (i *Installer) resolveLibraries(ctx context.Context, r *run) error {
	libs, err := libraryTasks(i.layout, r.record.ID, r.details, i.opts, &r.natives)
	if err != nil {
		return err
	}
	r.logger.Debugf("%d library files for %s/%s", len(libs), i.opts.Platform.OSKey(), i.opts.Platform.Arch)
	r.tasks = append(r.tasks, libs...)
	return nil
}

func (i *Installer) fetchAssetIndex(ctx context.Context, r *run) error {
	index, err := i.client.FetchAssetIndex(ctx, r.details.AssetIndex, i.opts.Root)
	if err != nil {
		return err
	}
	r.index = index
	r.tasks = append(r.tasks, assetTasks(i.layout, index, i.opts.AssetBaseURL, i.opts.SortAssetsBySize)...)
	return nil
}

func (i *Installer) downloadFiles(ctx context.Context, r *run) error {
	progressChan := make(chan download.Progress, 10)
	forwardDone := make(chan struct{})

	// Forward progress
	go func() {
		defer close(forwardDone)
		for p := range progressChan {
			percent := 0.0
			if p.TotalBytes > 0 {
				percent = float64(p.DownloadedBytes) / float64(p.TotalBytes)
			} else if p.TotalItems > 0 {
				percent = float64(p.CompletedItems) / float64(p.TotalItems)
			}
			p := p
			i.sendStatus(Status{
				Step:     StepDownload,
				Progress: percent,
				Message:  fmt.Sprintf("Downloading %s (%s)", p.CurrentItem, download.FormatSpeed(p.Speed)),
				Download: &p,
			})
		}
	}()

	report, err := i.downloader.Download(ctx, r.tasks, progressChan)
	close(progressChan)
	<-forwardDone

	// Cancellation leaves the undispatched tasks in report.Failed
	if err != nil {
		r.logger.WithError(err).Warn("Download stopped early")
	}
	r.report = report
	return nil
}
