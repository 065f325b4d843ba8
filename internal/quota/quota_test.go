package quota

import (
	"context"
	"testing"
	"time"

	"campaigns/internal/domain"
)

// fakeStore mimics the row-locked reservation semantics in memory.
type fakeStore struct {
	channel domain.Channel
	found   bool
}

func (f *fakeStore) GetChannel(ctx context.Context, id string) (domain.Channel, bool, error) {
	return f.channel, f.found, nil
}

func (f *fakeStore) ResetDailyIfNeeded(ctx context.Context, channelID string, now time.Time) error {
	day := now.UTC().Truncate(24 * time.Hour)
	if f.channel.LimitResetAt.Before(day) {
		f.channel.DailySent = 0
		f.channel.LimitResetAt = day
	}
	return nil
}

func (f *fakeStore) ReserveCapacity(ctx context.Context, channelID string, count int, now time.Time) (int, int, error) {
	_ = f.ResetDailyIfNeeded(ctx, channelID, now)
	limit := f.channel.EffectiveLimit()
	available := limit - f.channel.DailySent
	if available < 0 {
		available = 0
	}
	reserved := count
	if reserved > available {
		reserved = available
	}
	f.channel.DailySent += reserved
	remaining := limit - f.channel.DailySent
	if remaining < 0 {
		remaining = 0
	}
	return reserved, remaining, nil
}

func (f *fakeStore) ReleaseCapacity(ctx context.Context, channelID string, count int, now time.Time) error {
	f.channel.DailySent -= count
	if f.channel.DailySent < 0 {
		f.channel.DailySent = 0
	}
	return nil
}

func (f *fakeStore) ResetAllDaily(ctx context.Context, now time.Time) (int, error) { return 0, nil }

func today() time.Time { return time.Now().UTC().Truncate(24 * time.Hour) }

func TestReservePartialNearLimit(t *testing.T) {
	fs := &fakeStore{
		channel: domain.Channel{ID: "ch1", Tier: domain.Tier1K, DailySent: 999, LimitResetAt: today()},
		found:   true,
	}
	l := &Limiter{Store: fs}

	reserved, remaining, err := l.Reserve(context.Background(), "ch1", 5, time.Now().UTC())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reserved != 1 || remaining != 0 {
		t.Fatalf("expected reserved=1 remaining=0, got reserved=%d remaining=%d", reserved, remaining)
	}

	if err := l.Release(context.Background(), "ch1", 1, time.Now().UTC()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if fs.channel.DailySent != 999 {
		t.Fatalf("expected daily_sent restored to 999, got %d", fs.channel.DailySent)
	}
}

func TestReserveExhausted(t *testing.T) {
	fs := &fakeStore{
		channel: domain.Channel{ID: "ch1", DailyLimit: 2, Tier: domain.Tier1K, DailySent: 2, LimitResetAt: today()},
		found:   true,
	}
	l := &Limiter{Store: fs}

	reserved, remaining, err := l.Reserve(context.Background(), "ch1", 1, time.Now().UTC())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reserved != 0 || remaining != 0 {
		t.Fatalf("expected nothing reserved, got reserved=%d remaining=%d", reserved, remaining)
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	fs := &fakeStore{
		channel: domain.Channel{ID: "ch1", DailyLimit: 10, Tier: domain.Tier1K, DailySent: 1, LimitResetAt: today()},
		found:   true,
	}
	l := &Limiter{Store: fs}

	if err := l.Release(context.Background(), "ch1", 5, time.Now().UTC()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if fs.channel.DailySent != 0 {
		t.Fatalf("expected counter clamped at 0, got %d", fs.channel.DailySent)
	}
}

func TestCheckLimitLazyReset(t *testing.T) {
	yesterday := today().Add(-24 * time.Hour)
	fs := &fakeStore{
		channel: domain.Channel{ID: "ch1", DailyLimit: 100, Tier: domain.Tier1K, DailySent: 100, LimitResetAt: yesterday},
		found:   true,
	}
	l := &Limiter{Store: fs}

	st, err := l.CheckLimit(context.Background(), "ch1", time.Now().UTC())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !st.Allowed || st.Remaining != 100 {
		t.Fatalf("expected reset to full headroom, got allowed=%v remaining=%d", st.Allowed, st.Remaining)
	}
}

func TestCheckLimitUnlimitedTier(t *testing.T) {
	fs := &fakeStore{
		channel: domain.Channel{ID: "ch1", Tier: domain.TierUnlimited, DailySent: 5_000_000, LimitResetAt: today()},
		found:   true,
	}
	l := &Limiter{Store: fs}

	st, err := l.CheckLimit(context.Background(), "ch1", time.Now().UTC())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !st.Allowed {
		t.Fatalf("unlimited tier should always allow")
	}
}
