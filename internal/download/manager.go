// Package download handles parallel file downloads with progress tracking.
package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/httpclient"
)

// Kind labels a task for logs and progress
type Kind string

const (
	KindClient  Kind = "Client"
	KindLibrary Kind = "Library"
	KindNative  Kind = "Native"
	KindAsset   Kind = "Asset"
)

// Task represents a single file to fetch
type Task struct {
	URL  string
	Path string // Local destination path
	SHA1 string // Expected SHA1 hash (optional)
	Size int64  // Expected size in bytes
	Kind Kind

	// PostProcess runs with the file contents once the file is in place,
	// including when an existing file was reused.
	PostProcess func(data []byte) error
}

// Failure pairs a task with the error that stopped it
type Failure struct {
	Task Task
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Task.URL, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report is the outcome of a download batch. Every submitted task ends up
// in exactly one of Succeeded or Failed.
type Report struct {
	Succeeded []Task
	Failed    []Failure
	Skipped   int   // succeeded tasks whose file was already valid
	Bytes     int64 // bytes transferred over the network
}

// Total returns the number of tasks in the batch
func (r *Report) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// Progress tracks download progress
type Progress struct {
	TotalBytes      int64
	DownloadedBytes int64
	TotalItems      int
	CompletedItems  int
	FailedItems     int
	CurrentItem     string
	Speed           float64 // bytes per second
}

// Manager handles parallel downloads
type Manager struct {
	httpClient  *http.Client
	workerCount int
	logger      logrus.FieldLogger
	interval    time.Duration

	// Progress tracking
	mu              sync.RWMutex
	progress        Progress
	downloadedBytes int64
}

// Option configures a Manager
type Option func(*Manager)

// WithHTTPClient sets the client shared by all workers
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.httpClient = client }
}

// WithLogger sets the logger used for per-task lines
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithProgressInterval sets how often progress snapshots are sent
func WithProgressInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// NewManager creates a new download manager with at most workerCount
// transfers in flight.
func NewManager(workerCount int, opts ...Option) *Manager {
	if workerCount <= 0 {
		workerCount = 4
	}

	m := &Manager{
		workerCount: workerCount,
		logger:      logrus.StandardLogger(),
		interval:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.httpClient == nil {
		m.httpClient = httpclient.New(httpclient.DefaultOptions())
	}
	return m
}

// outcome is what a worker sends back for each task
type outcome struct {
	task    Task
	skipped bool
	bytes   int64
	err     error
}

// Download fetches all tasks and sends progress on the channel.
// Task failures are collected in the report; the error is non-nil only
// when ctx ends, in which case undispatched tasks are reported as failed.
func (m *Manager) Download(ctx context.Context, tasks []Task, progressChan chan<- Progress) (*Report, error) {
	report := &Report{}
	if len(tasks) == 0 {
		return report, nil
	}

	// Calculate total size
	var totalSize int64
	for _, task := range tasks {
		totalSize += task.Size
	}

	m.mu.Lock()
	m.progress = Progress{
		TotalBytes: totalSize,
		TotalItems: len(tasks),
	}
	m.downloadedBytes = 0
	m.mu.Unlock()

	var completed, failed int64

	// Signal for shutting down progress reporter
	doneSignal := make(chan struct{})
	progressDone := make(chan struct{})
	if progressChan != nil {
		go m.reportProgress(ctx, progressChan, &completed, &failed, doneSignal, progressDone)
	} else {
		close(progressDone)
	}

	// Buffered so workers never block on the collector
	results := make(chan outcome, len(tasks))

	swg := sizedwaitgroup.New(m.workerCount)
	for i, task := range tasks {
		err := ctx.Err()
		if err == nil {
			err = swg.AddWithContext(ctx)
		}
		if err != nil {
			for _, t := range tasks[i:] {
				results <- outcome{task: t, err: err}
			}
			break
		}

		go func(t Task) {
			defer swg.Done()

			m.mu.Lock()
			m.progress.CurrentItem = filepath.Base(t.Path)
			m.mu.Unlock()

			o := m.runTask(ctx, t)
			if o.err != nil {
				atomic.AddInt64(&failed, 1)
			} else {
				atomic.AddInt64(&completed, 1)
			}
			results <- o
		}(task)
	}

	swg.Wait()
	close(results)
	close(doneSignal)
	<-progressDone

	for o := range results {
		if o.err != nil {
			report.Failed = append(report.Failed, Failure{Task: o.task, Err: o.err})
			continue
		}
		report.Succeeded = append(report.Succeeded, o.task)
		report.Bytes += o.bytes
		if o.skipped {
			report.Skipped++
		}
	}

	return report, ctx.Err()
}

func (m *Manager) reportProgress(ctx context.Context, progressChan chan<- Progress, completed, failed *int64, doneSignal <-chan struct{}, progressDone chan<- struct{}) {
	defer close(progressDone)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var lastBytes int64
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-doneSignal:
			return
		case <-ticker.C:
			m.mu.RLock()
			p := m.progress
			m.mu.RUnlock()
			currentBytes := atomic.LoadInt64(&m.downloadedBytes)

			// Calculate speed
			now := time.Now()
			elapsed := now.Sub(lastTime).Seconds()
			if elapsed > 0 {
				p.Speed = float64(currentBytes-lastBytes) / elapsed
				lastBytes = currentBytes
				lastTime = now
			}
			p.DownloadedBytes = currentBytes
			p.CompletedItems = int(atomic.LoadInt64(completed))
			p.FailedItems = int(atomic.LoadInt64(failed))

			select {
			case progressChan <- p:
			default:
			}
		}
	}
}

// runTask downloads a single task, or reuses the file already on disk
func (m *Manager) runTask(ctx context.Context, task Task) outcome {
	if present(task) {
		atomic.AddInt64(&m.downloadedBytes, task.Size)
		if err := postProcess(task); err != nil {
			return outcome{task: task, err: err}
		}
		return outcome{task: task, skipped: true}
	}

	m.logger.Infof("Downloading %s: %s", task.Kind, task.URL)

	n, err := m.fetch(ctx, task)
	if err != nil {
		return outcome{task: task, err: err}
	}
	if err := postProcess(task); err != nil {
		return outcome{task: task, bytes: n, err: err}
	}
	return outcome{task: task, bytes: n}
}

// fetch streams the task's URL into a temp file beside the destination and
// renames it into place once the hash checks out.
func (m *Manager) fetch(ctx context.Context, task Task) (int64, error) {
	dir := filepath.Dir(task.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, core.IOError("creating directory", dir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return 0, core.NetworkError("creating request", task.URL, err)
	}

	// Retries handled by retryablehttp
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, core.NetworkError("downloading", task.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, core.NetworkError("downloading", task.URL, &core.StatusError{Code: resp.StatusCode, URL: task.URL})
	}

	f, err := os.CreateTemp(dir, filepath.Base(task.Path)+".*.tmp")
	if err != nil {
		return 0, core.IOError("creating file", dir, err)
	}
	tmpPath := f.Name()

	hasher := sha1.New()
	writer := io.MultiWriter(f, hasher)

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := writer.Write(buf[:n]); writeErr != nil {
				f.Close()
				os.Remove(tmpPath)
				return written, core.IOError("writing file", tmpPath, writeErr)
			}
			written += int64(n)
			atomic.AddInt64(&m.downloadedBytes, int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(tmpPath)
			return written, core.NetworkError("reading response", task.URL, readErr)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return written, core.IOError("closing file", tmpPath, err)
	}

	if task.SHA1 != "" {
		hash := hex.EncodeToString(hasher.Sum(nil))
		if hash != task.SHA1 {
			os.Remove(tmpPath)
			return written, core.NetworkError("verifying", task.URL,
				fmt.Errorf("hash mismatch: expected %s, got %s", task.SHA1, hash))
		}
	}

	if err := os.Rename(tmpPath, task.Path); err != nil {
		os.Remove(tmpPath)
		return written, core.IOError("renaming file", task.Path, err)
	}

	return written, nil
}

// present reports whether the destination already holds the expected file.
// Without a hash, a matching non-zero size is taken as proof.
func present(task Task) bool {
	if task.SHA1 != "" {
		hash, err := hashFile(task.Path)
		return err == nil && hash == task.SHA1
	}
	if task.Size <= 0 {
		return false
	}
	info, err := os.Stat(task.Path)
	return err == nil && info.Mode().IsRegular() && info.Size() == task.Size
}

func postProcess(task Task) error {
	if task.PostProcess == nil {
		return nil
	}
	data, err := os.ReadFile(task.Path)
	if err != nil {
		return core.IOError("reading file", task.Path, err)
	}
	return task.PostProcess(data)
}

// hashFile computes SHA1 of a file
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FormatSpeed formats download speed for display
func FormatSpeed(bytesPerSec float64) string {
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}
