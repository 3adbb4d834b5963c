package answer

import (
	"sync"
	"time"
)

// DailyTokenLimit is the default daily token budget for generation.
const DailyTokenLimit = 100000

// QuotaManager tracks a daily token counter that resets at local
// midnight. The reset is lazy, checked on every access, so the counter
// is correct even after long idle periods. Safe for concurrent use.
type QuotaManager struct {
	mu       sync.Mutex
	limit    int
	used     int
	resetDay time.Time
	now      func() time.Time
}

// NewQuotaManager creates a manager with the given limit
// (DailyTokenLimit when zero).
func NewQuotaManager(limit int) *QuotaManager {
	if limit <= 0 {
		limit = DailyTokenLimit
	}
	q := &QuotaManager{
		limit: limit,
		now:   time.Now,
	}
	q.resetDay = startOfDay(q.now())
	return q
}

// Admit reports whether a request estimated at estimatedTokens fits the
// remaining daily budget. Requests summing to exactly the limit are
// admitted; one token more is rejected.
func (q *QuotaManager) Admit(estimatedTokens int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.maybeResetLocked()
	return q.used+estimatedTokens <= q.limit
}

// Commit records estimatedTokens against the daily budget. The caller
// commits the estimate, not actual usage: a deliberate conservative
// overcount that avoids a second accounting step after the call.
func (q *QuotaManager) Commit(estimatedTokens int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.maybeResetLocked()
	q.used += estimatedTokens
}

// Used returns the tokens consumed so far today.
func (q *QuotaManager) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.maybeResetLocked()
	return q.used
}

func (q *QuotaManager) maybeResetLocked() {
	day := startOfDay(q.now())
	if day.After(q.resetDay) {
		q.used = 0
		q.resetDay = day
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
