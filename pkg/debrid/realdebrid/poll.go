package realdebrid

import (
	"context"
	"github.com/magnetdl/magnetdl/internal/request"
	"time"
)

const (
	smallTorrent = 500 << 20
	largeTorrent = 5 << 30

	maxPollInterval = 300 * time.Second
)

// PollPolicy is the retry budget used while waiting on a torrent.
type PollPolicy struct {
	Attempts int
	Interval time.Duration
	Max      time.Duration
}

// PollPolicyFor picks the budget from the torrent size alone.
func PollPolicyFor(size int64) PollPolicy {
	switch {
	case size < smallTorrent:
		return PollPolicy{Attempts: 30, Interval: 5 * time.Second, Max: maxPollInterval}
	case size < largeTorrent:
		return PollPolicy{Attempts: 120, Interval: 10 * time.Second, Max: maxPollInterval}
	default:
		return PollPolicy{Attempts: 300, Interval: 30 * time.Second, Max: maxPollInterval}
	}
}

// Intervals returns the wait before each retry. The sequence never decreases.
func (p PollPolicy) Intervals() []time.Duration {
	out := make([]time.Duration, 0, p.Attempts)
	d := p.Interval
	for i := 0; i < p.Attempts; i++ {
		out = append(out, d)
		d = min(d*2, p.Max)
	}
	return out
}

var terminalStatuses = map[string]struct{}{
	"error":        {},
	"magnet_error": {},
	"virus":        {},
	"dead":         {},
	"downloaded":   {},
}

// IsTerminal reports whether a torrent in this status will never move again.
func IsTerminal(status string) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// WaitForStatus polls the torrent until it reaches desired.
//
// A terminal status other than desired fails immediately with *StatusError.
// Transport errors, 429 and 5xx answers consume an attempt and are retried; any
// other failure (bad token, unknown torrent) is returned as is. Cancellation
// returns ctx.Err() without waiting out the current interval.
func (r *RealDebrid) WaitForStatus(ctx context.Context, id string, desired string, sizeHint int64) error {
	policy := r.policyFor(sizeHint)
	interval := policy.Interval
	var lastErr error

	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := r.getTorrentInfo(ctx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !request.IsRetryable(err) {
				return err
			}
			lastErr = err
			r.logger.Warn().Err(err).Int("attempt", attempt).Msgf("Failed to check torrent %s", id)
		case info.Status == desired:
			return nil
		case IsTerminal(info.Status):
			return &StatusError{Id: id, Status: info.Status}
		default:
			r.logger.Debug().Msgf("Torrent %s is %s (%.0f%%), attempt %d/%d", id, info.Status, info.Progress, attempt, policy.Attempts)
		}

		if attempt == policy.Attempts {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
		interval = min(interval*2, policy.Max)
	}

	if lastErr != nil {
		r.logger.Debug().Err(lastErr).Msgf("Last error while waiting on %s", id)
	}
	return ErrTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
