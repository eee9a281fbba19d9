package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// HostnameFunc reads the current ingress hostname. Empty string with nil
// error means the load balancer is not provisioned yet.
type HostnameFunc func(ctx context.Context) (string, error)

type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

type PollStats struct {
	Attempts int
	Elapsed  time.Duration
}

// TimeoutError is returned when the attempt bound or the wall-clock ceiling
// is exhausted before a hostname appears.
type TimeoutError struct {
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("no load balancer hostname after %d attempts in %s", e.Attempts, e.Elapsed.Truncate(time.Millisecond))
	if e.LastErr != nil {
		return msg + ": " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

var hostnameRE = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)*$`)

// ValidateHostname rejects empty strings, whitespace, and anything that is
// not syntactically a DNS hostname.
func ValidateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("hostname is empty")
	}
	for _, r := range host {
		if unicode.IsSpace(r) {
			return fmt.Errorf("hostname %q contains whitespace", host)
		}
	}
	if !hostnameRE.MatchString(host) {
		return fmt.Errorf("hostname %q is not a valid DNS name", host)
	}
	return nil
}

// WaitForHostname polls lookup at a fixed interval until it returns a
// non-empty hostname, the attempt bound is reached, or ctx expires. The
// context carries the overall wall-clock ceiling, independent of how many
// attempts have been consumed. Lookup errors are treated as a not-yet
// condition and retried; a malformed hostname is fatal immediately.
func WaitForHostname(ctx context.Context, lookup HostnameFunc, opts Options) (string, PollStats, error) {
	started := time.Now()
	stats := PollStats{}
	var lastErr error

	for i := 0; i < opts.MaxAttempts; i++ {
		stats.Attempts = i + 1

		host, err := lookup(ctx)
		if err == nil {
			host = strings.TrimSpace(host)
			if host != "" {
				stats.Elapsed = time.Since(started)
				if vErr := ValidateHostname(host); vErr != nil {
					return "", stats, fmt.Errorf("ingress reported malformed hostname: %w", vErr)
				}
				return host, stats, nil
			}
		} else {
			lastErr = err
		}

		if i == opts.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			stats.Elapsed = time.Since(started)
			return "", stats, fmt.Errorf("endpoint discovery canceled after %d attempts in %s: %w",
				stats.Attempts, stats.Elapsed.Truncate(time.Millisecond), ctx.Err())
		case <-time.After(opts.Interval):
		}
	}

	stats.Elapsed = time.Since(started)
	return "", stats, &TimeoutError{Attempts: stats.Attempts, Elapsed: stats.Elapsed, LastErr: lastErr}
}
