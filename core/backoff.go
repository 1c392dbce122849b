package core

import "time"

const (
	defaultRefreshInitialBackoff = 500 * time.Millisecond
	defaultRefreshMaxBackoff     = 30 * time.Second
)

// RefreshBackoffScheduler yields the delay before a retry attempt. Attempts
// are 1-based.
type RefreshBackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRefreshInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRefreshMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Scheduler builds the backoff scheduler described by the refresh settings.
func (cfg RefreshConfig) Scheduler() RefreshBackoffScheduler {
	return ExponentialBackoffScheduler{Initial: cfg.InitialBackoff, Max: cfg.MaxBackoff}
}
