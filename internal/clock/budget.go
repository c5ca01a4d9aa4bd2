package clock

import "time"

// Budget bounds how long a stage keeps pulling batches within one tick.
type Budget struct {
	started time.Time
	limit   time.Duration
	now     func() time.Time
}

// NewBudget starts a budget of limit. A zero limit never expires.
func NewBudget(limit time.Duration) *Budget {
	return &Budget{started: time.Now(), limit: limit, now: time.Now}
}

// Elapsed returns the time spent since the budget started.
func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.started)
}

// Exhausted reports whether the budget is used up.
func (b *Budget) Exhausted() bool {
	return b.limit > 0 && b.Elapsed() >= b.limit
}

// ETA extrapolates the remaining time from done units out of total.
func (b *Budget) ETA(done, total int64) time.Duration {
	if done <= 0 || total <= done {
		return 0
	}
	perUnit := b.Elapsed() / time.Duration(done)
	return perUnit * time.Duration(total-done)
}
