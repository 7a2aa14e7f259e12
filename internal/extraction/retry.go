package extraction

import (
	"context"
	"time"
)

// RetryPolicy bounds provider polling
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy polls five times, three seconds apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 3 * time.Second}
}

// Begin starts a new poll sequence
func (p RetryPolicy) Begin() *Poll {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	return &Poll{policy: p}
}

// Step tells the runner what to do after an attempt
type Step struct {
	Attempt   int
	Done      bool
	Exhausted bool
	Wait      time.Duration
}

// Poll is the state of one polling sequence. It holds no timers.
type Poll struct {
	policy    RetryPolicy
	attempts  int
	done      bool
	exhausted bool
}

// Observe records the outcome of an attempt and returns the next step
func (p *Poll) Observe(success bool) Step {
	if p.done {
		return Step{Attempt: p.attempts, Done: true, Exhausted: p.exhausted}
	}

	p.attempts++
	switch {
	case success:
		p.done = true
	case p.attempts >= p.policy.MaxAttempts:
		p.done = true
		p.exhausted = true
	default:
		return Step{Attempt: p.attempts, Wait: p.policy.Delay}
	}

	return Step{Attempt: p.attempts, Done: true, Exhausted: p.exhausted}
}

// Attempts returns how many attempts have been observed
func (p *Poll) Attempts() int {
	return p.attempts
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the timer-backed SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
