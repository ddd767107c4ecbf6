// Package probes implements the external probe facade (C7): small,
// explicitly time-bounded checks the policy evaluator uses as inputs. None
// of them retain state across calls; sticky counters over their results
// live in the runtime monitor, not here.
package probes

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/spf13/afero"

	"github.com/anonymous-shadowhawk/pacboot/internal/logging"
)

// Default timeouts from §5.
const (
	DefaultReachabilityTimeout = 2 * time.Second
	DefaultStabilityWindow     = 60 * time.Second
	stabilityProbeInterval     = 5 * time.Second
)

// Probes bundles the verifier URL, a stability target host, and the
// filesystem used to look for tier-root images.
type Probes struct {
	fs            afero.Fs
	log           *logging.Logger
	client        *http.Client
	verifierURL   string
	stabilityHost string
	tierRootPath  func(tier int) string
}

// Option configures New.
type Option func(*Probes)

// WithFs overrides the filesystem backing used for tier-root presence
// checks (default afero.NewOsFs()).
func WithFs(fs afero.Fs) Option {
	return func(p *Probes) { p.fs = fs }
}

// WithLogger attaches a logger for probe failures.
func WithLogger(l *logging.Logger) Option {
	return func(p *Probes) { p.log = l }
}

// WithHTTPClient overrides the HTTP client used for reachability probes,
// primarily so tests can inject one pointed at an httptest.Server.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Probes) { p.client = c }
}

// WithTierRootPath overrides how a tier maps to a filesystem path.
func WithTierRootPath(f func(tier int) string) Option {
	return func(p *Probes) { p.tierRootPath = f }
}

// New creates a Probes facade. verifierURL is polled by VerifierReachable;
// stabilityHost is polled by NetworkStableFor.
func New(verifierURL, stabilityHost string, opts ...Option) *Probes {
	p := &Probes{
		fs:            afero.NewOsFs(),
		log:           logging.Default().Module("probes"),
		client:        &http.Client{Timeout: DefaultReachabilityTimeout},
		verifierURL:   verifierURL,
		stabilityHost: stabilityHost,
		tierRootPath:  defaultTierRootPath,
	}
	for _, fn := range opts {
		fn(p)
	}
	return p
}

func defaultTierRootPath(tier int) string {
	switch tier {
	case 2:
		return "/mnt/tier2root.img"
	case 3:
		return "/mnt/tier3root.img"
	default:
		return ""
	}
}

// VerifierReachable probes the verifier URL once with a bounded timeout
// and reports whether it answered successfully.
func (p *Probes) VerifierReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, DefaultReachabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.verifierURL, nil)
	if err != nil {
		p.log.Warn("verifier probe: bad request", "err", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("verifier unreachable", "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// NetworkStableFor probes the stability host at a fixed interval for the
// given duration, returning true only if every probe in the window
// succeeds (§4.7). It returns false immediately on the first failure
// rather than waiting out the remainder of the window.
func (p *Probes) NetworkStableFor(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	interval := stabilityProbeInterval
	if interval > d {
		interval = d
	}

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if !p.dialOnce(ctx) {
			return false
		}
		if time.Now().Add(interval).After(deadline) {
			return true
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

func (p *Probes) dialOnce(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, DefaultReachabilityTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.stabilityHost)
	if err != nil {
		p.log.Warn("network stability probe failed", "host", p.stabilityHost, "err", err)
		return false
	}
	_ = conn.Close()
	return true
}

// TierRootPresent checks whether the tier-specific root image exists.
func (p *Probes) TierRootPresent(tier int) bool {
	path := p.tierRootPath(tier)
	if path == "" {
		return false
	}
	exists, err := afero.Exists(p.fs, path)
	if err != nil {
		p.log.Warn("tier root probe failed", "tier", tier, "err", err)
		return false
	}
	return exists
}
