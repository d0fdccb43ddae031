package report

import (
	"os"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// Setup initializes Sentry. An empty DSN leaves the SDK disabled, so every
// Report call becomes a no-op.
func Setup(dsn, env string) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
	}); err != nil {
		return err
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("env", env)
		scope.SetTag("go_version", runtime.Version())
		scope.SetContext("host_info", map[string]interface{}{
			"hostname": getHostname(),
		})
	})
	return nil
}

func Flush() {
	sentry.Flush(2 * time.Second)
}

// getHostname retrieves the system hostname.
// If the hostname cannot be determined, it returns "unknown".
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// Options provides optional data for reporting.
type Options struct {
	Tags         map[string]string
	ExtraContext map[string]interface{}
	Level        sentry.Level
}

// Error reports err with the given options. Nil errors are ignored.
func Error(err error, opts Options) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		if opts.ExtraContext != nil {
			scope.SetContext("extra", opts.ExtraContext)
		}
		for k, v := range opts.Tags {
			scope.SetTag(k, v)
		}
		level := opts.Level
		if level == "" {
			level = sentry.LevelError
		}
		scope.SetLevel(level)
		sentry.CaptureException(err)
	})
}

// Warn logs a swallowed best-effort failure and reports it at warning level.
func Warn(err error, operation string, tags map[string]string) {
	if err == nil {
		return
	}
	ev := log.Warn().Err(err).Str("operation", operation)
	for k, v := range tags {
		ev = ev.Str(k, v)
	}
	ev.Msg("best-effort operation failed")

	reportTags := map[string]string{"operation": operation}
	for k, v := range tags {
		reportTags[k] = v
	}
	Error(err, Options{Tags: reportTags, Level: sentry.LevelWarning})
}
