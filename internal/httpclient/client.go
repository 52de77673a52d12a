// Package httpclient builds the retrying HTTP client shared by every fetch.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Options configures the shared client
type Options struct {
	Timeout      time.Duration // per request, applied uniformly
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       logrus.FieldLogger
}

// DefaultOptions mirrors the download defaults: 3 retries with 1s..10s backoff.
func DefaultOptions() Options {
	return Options{
		Timeout:      5 * time.Minute,
		RetryMax:     3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 10 * time.Second,
	}
}

// New creates a retryable client. The returned *http.Client is safe for
// concurrent use and is shared across all download workers.
func New(opts Options) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}
	// Hand the last response back so callers can report its status code
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Logger != nil {
		retryClient.Logger = leveledLogger{opts.Logger}
	} else {
		retryClient.Logger = nil // Silence default logging
	}

	// Configure underlying transport
	retryClient.HTTPClient.Transport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	retryClient.HTTPClient.Timeout = opts.Timeout

	return retryClient.StandardClient()
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l logrus.FieldLogger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (ll leveledLogger) Error(msg string, kv ...interface{}) { ll.with(kv).Error(msg) }
func (ll leveledLogger) Info(msg string, kv ...interface{})  { ll.with(kv).Debug(msg) }
func (ll leveledLogger) Debug(msg string, kv ...interface{}) { ll.with(kv).Debug(msg) }
func (ll leveledLogger) Warn(msg string, kv ...interface{})  { ll.with(kv).Warn(msg) }

func (ll leveledLogger) with(kv []interface{}) logrus.FieldLogger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			fields[key] = kv[i+1]
		}
	}
	return ll.l.WithFields(fields)
}
