// Package health implements the health oracle adapter (C6): it parses the
// health report produced by an external collector and exposes a score,
// per-check booleans, and a freshness predicate. The core never collects
// health data itself; it only consumes a snapshot written to a known path.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/anonymous-shadowhawk/pacboot/internal/logging"
)

// Status strings the report may carry in overall_status (§3.3). Unknown
// values are accepted and passed through unchanged; the oracle does not
// validate them beyond comprehension.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusMarginal = "marginal"
	StatusCritical = "critical"
)

// Decision thresholds for Classify (§6.5), a narrower scale distinct from
// the configurable T2Score/T3Score promotion thresholds in internal/policy:
// §6.5 pins this one to "score >= 5/6" explicitly rather than leaving it
// configurable.
const (
	ScoreHealthyMin  uint32 = 5
	ScoreDegradedMin uint32 = 3
)

// Decision codes returned by Classify (§6.5).
const (
	DecisionHealthy  = 0
	DecisionDegraded = 1
	DecisionCritical = 2
)

// ErrReportUnavailable is Classify's distinguished error for "unrecoverable
// I/O failure reading inputs" (§6.5): the most recent attempt to read and
// parse the health report failed, or none has been made yet.
var ErrReportUnavailable = errors.New("health: report unavailable")

// Report mirrors the on-disk health report schema (§6.2). Unknown fields in
// the source JSON are ignored by encoding/json's default decode behavior.
type Report struct {
	OverallScore  uint32          `json:"overall_score"`
	OverallStatus string          `json:"overall_status"`
	Checks        map[string]bool `json:"checks"`
	Timestamp     int64           `json:"timestamp"`
}

// Oracle reads and caches the health report at a fixed path. It is an
// explicit Handle rather than process-wide state, matching the journal
// store's design (no package-level mutable oracle).
type Oracle struct {
	fs   afero.Fs
	path string
	log  *logging.Logger
	now  func() time.Time

	mu       sync.RWMutex
	last     *Report // nil if the last Refresh failed or none has run yet
	watching bool    // true once Watch has taken over refreshing last
}

// Option configures New.
type Option func(*Oracle)

// WithFs overrides the filesystem backing (default afero.NewOsFs()).
func WithFs(fs afero.Fs) Option {
	return func(o *Oracle) { o.fs = fs }
}

// WithLogger attaches a logger used for parse-failure notices.
func WithLogger(l *logging.Logger) Option {
	return func(o *Oracle) { o.log = l }
}

// WithClock overrides the clock used by IsFresh, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// New creates an Oracle reading the health report at path.
func New(path string, opts ...Option) *Oracle {
	o := &Oracle{
		fs:   afero.NewOsFs(),
		path: path,
		log:  logging.Default().Module("health"),
		now:  time.Now,
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// refresh reads and parses the report, caching the result. A missing or
// malformed report clears the cache rather than erroring: §4.6 requires
// callers to see "fails all guards," not a raised exception.
func (o *Oracle) refresh() {
	raw, err := afero.ReadFile(o.fs, o.path)
	if err != nil {
		o.log.Warn("health report unavailable", "path", o.path, "err", err)
		o.mu.Lock()
		o.last = nil
		o.mu.Unlock()
		return
	}

	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		o.log.Warn("health report malformed", "path", o.path, "err", err)
		o.mu.Lock()
		o.last = nil
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	o.last = &r
	o.mu.Unlock()
}

// ensureFresh re-reads the report from disk unless a Watch goroutine is
// already keeping the cache current, in which case the watcher's last
// delivered value is trusted instead of re-reading on every call.
func (o *Oracle) ensureFresh() {
	o.mu.RLock()
	watching := o.watching
	o.mu.RUnlock()
	if !watching {
		o.refresh()
	}
}

// Score returns overall_score, or 0 if the report is absent or malformed
// (§8 boundary behavior: absent/negative score treated as 0).
func (o *Oracle) Score() uint32 {
	o.ensureFresh()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return 0
	}
	return o.last.OverallScore
}

// Check returns the named per-component boolean, or false if the report is
// absent, malformed, or does not mention that check (§4.6).
func (o *Oracle) Check(name string) bool {
	o.ensureFresh()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return false
	}
	return o.last.Checks[name]
}

// Status returns overall_status, or "" if the report is absent or malformed.
func (o *Oracle) Status() string {
	o.ensureFresh()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return ""
	}
	return o.last.OverallStatus
}

// IsFresh reports whether the report's timestamp is within maxAge of now.
// An absent or malformed report is never fresh.
func (o *Oracle) IsFresh(maxAge time.Duration) bool {
	o.ensureFresh()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return false
	}
	age := o.now().Sub(time.Unix(o.last.Timestamp, 0))
	return age >= 0 && age <= maxAge
}

// Classify maps the oracle's cached score onto the boot controller's
// health_check_run decision-return scale (§6.5): 0 healthy, 1 degraded,
// 2 critical. It returns ErrReportUnavailable instead of a decision when
// the most recent read or parse of the report failed.
func (o *Oracle) Classify() (int, error) {
	o.ensureFresh()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return 0, ErrReportUnavailable
	}
	switch {
	case o.last.OverallScore >= ScoreHealthyMin:
		return DecisionHealthy, nil
	case o.last.OverallScore >= ScoreDegradedMin:
		return DecisionDegraded, nil
	default:
		return DecisionCritical, nil
	}
}

// Watch starts a background fsnotify watch on the report's directory and
// refreshes the cache whenever the report file is written, instead of
// re-reading it on every Score/Check/Status/IsFresh call. It only takes
// effect against a real filesystem (o.fs is *afero.OsFs); against an
// in-memory fs used by tests it is a no-op and callers keep the
// read-on-every-call behavior. The watch goroutine exits when ctx is done.
func (o *Oracle) Watch(ctx context.Context) error {
	if _, isOs := o.fs.(*afero.OsFs); !isOs {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(o.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}

	o.refresh()
	o.mu.Lock()
	o.watching = true
	o.mu.Unlock()

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(o.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					o.refresh()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				o.log.Warn("health report watch error", "err", err)
			}
		}
	}()
	return nil
}
