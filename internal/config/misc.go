package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var rateRegex = regexp.MustCompile(`^(\d+)/(minute|second)$`)

// ParseRate parses "250/minute" or "4/second".
func ParseRate(rateStr string) (int, time.Duration, error) {
	matches := rateRegex.FindStringSubmatch(rateStr)
	if len(matches) != 3 {
		return 0, 0, fmt.Errorf("invalid rate limit %q", rateStr)
	}
	count, err := strconv.Atoi(matches[1])
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("invalid rate limit %q", rateStr)
	}
	if matches[2] == "minute" {
		return count, time.Minute, nil
	}
	return count, time.Second, nil
}

// parseDuration accepts an empty string as zero
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := parseDuration(s)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}

func (a Aria2) GetSpawnDelay() time.Duration {
	return durationOr(a.SpawnDelay, 2*time.Second)
}

func (m Monitor) GetInteractiveInterval() time.Duration {
	return durationOr(m.InteractiveInterval, 200*time.Millisecond)
}

func (m Monitor) GetAggregateInterval() time.Duration {
	return durationOr(m.AggregateInterval, 2*time.Second)
}

// GetMaxDuration returns 0 when the run has no wall-clock ceiling
func (w Workflow) GetMaxDuration() time.Duration {
	return durationOr(w.MaxDuration, 0)
}
