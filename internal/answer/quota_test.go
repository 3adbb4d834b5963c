package answer

import (
	"testing"
	"time"
)

func newTestQuota(limit int) (*QuotaManager, *time.Time) {
	q := NewQuotaManager(limit)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return current }
	q.resetDay = startOfDay(current)
	return q, &current
}

func TestQuotaAdmitExactLimit(t *testing.T) {
	q, _ := newTestQuota(100)

	if !q.Admit(100) {
		t.Error("request summing to exactly the limit must be admitted")
	}
	q.Commit(100)

	if q.Admit(1) {
		t.Error("one token past the limit must be rejected")
	}
}

func TestQuotaAccumulates(t *testing.T) {
	q, _ := newTestQuota(100)

	q.Commit(40)
	q.Commit(40)

	if !q.Admit(20) {
		t.Error("20 remaining tokens should admit a 20-token request")
	}
	if q.Admit(21) {
		t.Error("21 tokens should exceed the remaining budget")
	}
	if q.Used() != 80 {
		t.Errorf("used = %d, want 80", q.Used())
	}
}

func TestQuotaResetsAtDayBoundary(t *testing.T) {
	q, current := newTestQuota(100)

	q.Commit(100)
	if q.Admit(1) {
		t.Fatal("budget should be exhausted")
	}

	// Cross local midnight; the reset is lazy on next access.
	*current = current.Add(13 * time.Hour)

	if !q.Admit(100) {
		t.Error("counter should reset after the day boundary")
	}
	if q.Used() != 0 {
		t.Errorf("used after reset = %d, want 0", q.Used())
	}
}

func TestQuotaNoResetWithinSameDay(t *testing.T) {
	q, current := newTestQuota(100)

	q.Commit(60)
	*current = current.Add(2 * time.Hour)

	if q.Used() != 60 {
		t.Errorf("used = %d, want 60 within the same day", q.Used())
	}
}

func TestQuotaDefaultLimit(t *testing.T) {
	q := NewQuotaManager(0)
	if !q.Admit(DailyTokenLimit) {
		t.Error("default limit should admit DailyTokenLimit tokens")
	}
	if q.Admit(DailyTokenLimit + 1) {
		t.Error("default limit should reject DailyTokenLimit+1 tokens")
	}
}
