package subscription

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/pipeline"
	"github.com/mohammad-safakhou/scout/internal/result"
)

type fakeRunner struct {
	report result.Report
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) result.Report {
	f.calls++
	return f.report
}

func scored(platform, title, url string, score int) result.ScoredResult {
	return result.ScoredResult{
		RawResult:      result.RawResult{Title: title, URL: url, Content: "body", Platform: platform},
		RelevanceScore: score,
	}
}

func reportWith(byPlatform result.FilteredByPlatform) result.Report {
	return result.Report{
		Summary:           "summary",
		TotalResults:      byPlatform.TotalResults(),
		ResultsByPlatform: byPlatform,
	}
}

func newTestChecker(t *testing.T, report result.Report) (*Checker, *Store, *fakeRunner) {
	t.Helper()
	store, _ := newTestStore(t)
	runner := &fakeRunner{report: report}
	checker := NewChecker(store, runner, nil, config.NotificationsConfig{
		NotificationTTL: time.Hour,
		MaxPerUser:      3,
	})
	return checker, store, runner
}

func TestCheckNotifiesOnNewResults(t *testing.T) {
	report := reportWith(result.FilteredByPlatform{
		"github": {scored("github", "repo", "https://github.com/a/b", 8)},
		"reddit": {scored("reddit", "thread", "https://reddit.com/r/golang/1", 9)},
	})
	checker, store, _ := newTestChecker(t, report)
	ctx := context.Background()

	sub := sampleSubscription("sub-1", "user-1", time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC))
	if err := store.Save(ctx, sub); err != nil {
		t.Fatalf("saving subscription: %v", err)
	}

	n, err := checker.Check(ctx, sub)
	if err != nil {
		t.Fatalf("checking: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 new results, got %d", n)
	}

	notifications, err := store.ListNotifications(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("listing notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
	got := notifications[0]
	if got.SubscriptionID != "sub-1" || got.NewResultsCount != 2 || len(got.Results) != 2 {
		t.Fatalf("unexpected notification: %+v", got)
	}

	for _, check := range []struct{ platform, url string }{
		{"github", "https://github.com/a/b"},
		{"reddit", "https://reddit.com/r/golang/1"},
	} {
		seen, err := store.IsSeen(ctx, check.platform, check.url)
		if err != nil {
			t.Fatalf("checking marker: %v", err)
		}
		if !seen {
			t.Fatalf("expected %s marked seen after notification", check.url)
		}
	}

	updated, err := store.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("reloading subscription: %v", err)
	}
	if updated.LastChecked == nil {
		t.Fatalf("expected last_checked to be set")
	}
}

func TestCheckSkipsSeenResults(t *testing.T) {
	report := reportWith(result.FilteredByPlatform{
		"reddit": {
			scored("reddit", "old thread", "https://reddit.com/old", 8),
			scored("reddit", "new thread", "https://reddit.com/new", 9),
		},
	})
	checker, store, _ := newTestChecker(t, report)
	ctx := context.Background()

	sub := sampleSubscription("sub-1", "user-1", time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC))
	if err := store.Save(ctx, sub); err != nil {
		t.Fatalf("saving subscription: %v", err)
	}
	if err := store.MarkSeen(ctx, "reddit", "https://reddit.com/old"); err != nil {
		t.Fatalf("pre-marking: %v", err)
	}

	n, err := checker.Check(ctx, sub)
	if err != nil {
		t.Fatalf("checking: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 new result, got %d", n)
	}

	notifications, err := store.ListNotifications(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("listing notifications: %v", err)
	}
	if len(notifications) != 1 || len(notifications[0].Results) != 1 {
		t.Fatalf("expected a single-result notification, got %+v", notifications)
	}
	if notifications[0].Results[0].Title != "new thread" {
		t.Fatalf("expected only the unseen result, got %q", notifications[0].Results[0].Title)
	}
}

func TestCheckSecondRunFindsNothing(t *testing.T) {
	report := reportWith(result.FilteredByPlatform{
		"github": {
			scored("github", "one", "https://github.com/1", 8),
			scored("github", "two", "https://github.com/2", 7),
		},
	})
	checker, store, runner := newTestChecker(t, report)
	ctx := context.Background()

	sub := sampleSubscription("sub-1", "user-1", time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC))
	if err := store.Save(ctx, sub); err != nil {
		t.Fatalf("saving subscription: %v", err)
	}

	if n, err := checker.Check(ctx, sub); err != nil || n != 2 {
		t.Fatalf("first check: n=%d err=%v", n, err)
	}
	if n, err := checker.Check(ctx, sub); err != nil || n != 0 {
		t.Fatalf("second check should find nothing: n=%d err=%v", n, err)
	}
	if runner.calls != 2 {
		t.Fatalf("expected pipeline run per check, got %d", runner.calls)
	}

	notifications, err := store.ListNotifications(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("listing notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("second check must not add a notification, got %d", len(notifications))
	}
}

func TestCheckCapsNotificationResults(t *testing.T) {
	items := make([]result.ScoredResult, 0, 15)
	for i := 0; i < 15; i++ {
		items = append(items, scored("reddit", fmt.Sprintf("thread %d", i), fmt.Sprintf("https://reddit.com/%d", i), 8))
	}
	report := reportWith(result.FilteredByPlatform{"reddit": items})
	checker, store, _ := newTestChecker(t, report)
	ctx := context.Background()

	sub := sampleSubscription("sub-1", "user-1", time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC))
	if err := store.Save(ctx, sub); err != nil {
		t.Fatalf("saving subscription: %v", err)
	}

	n, err := checker.Check(ctx, sub)
	if err != nil {
		t.Fatalf("checking: %v", err)
	}
	if n != 15 {
		t.Fatalf("expected 15 new results, got %d", n)
	}

	notifications, err := store.ListNotifications(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("listing notifications: %v", err)
	}
	if notifications[0].NewResultsCount != 15 {
		t.Fatalf("expected full count 15, got %d", notifications[0].NewResultsCount)
	}
	if len(notifications[0].Results) != notificationResultLimit {
		t.Fatalf("expected preview capped at %d, got %d", notificationResultLimit, len(notifications[0].Results))
	}
}

func TestCheckIgnoresResultsWithoutURL(t *testing.T) {
	report := reportWith(result.FilteredByPlatform{
		"reddit": {scored("reddit", "no link", "", 8)},
	})
	checker, store, _ := newTestChecker(t, report)
	ctx := context.Background()

	sub := sampleSubscription("sub-1", "user-1", time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC))
	if err := store.Save(ctx, sub); err != nil {
		t.Fatalf("saving subscription: %v", err)
	}

	n, err := checker.Check(ctx, sub)
	if err != nil {
		t.Fatalf("checking: %v", err)
	}
	if n != 0 {
		t.Fatalf("url-less results must not notify, got %d", n)
	}

	notifications, err := store.ListNotifications(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("listing notifications: %v", err)
	}
	if len(notifications) != 0 {
		t.Fatalf("expected no notification, got %d", len(notifications))
	}
}

func TestIsDue(t *testing.T) {
	now := time.Now()
	halfHourAgo := now.Add(-30 * time.Minute)
	twoHoursAgo := now.Add(-2 * time.Hour)
	dayAndHourAgo := now.Add(-25 * time.Hour)
	sixteenMinAgo := now.Add(-16 * time.Minute)

	tests := []struct {
		name     string
		schedule string
		last     *time.Time
		want     bool
	}{
		{"hourly never checked", "@hourly", nil, true},
		{"hourly recently checked", "@hourly", &halfHourAgo, false},
		{"hourly overdue", "@hourly", &twoHoursAgo, true},
		{"daily recently checked", "@daily", &twoHoursAgo, false},
		{"daily overdue", "@daily", &dayAndHourAgo, true},
		{"cron never checked", "*/15 * * * *", nil, true},
		{"cron boundary passed", "*/15 * * * *", &sixteenMinAgo, true},
		{"cron just checked", "*/15 * * * *", &now, false},
		{"invalid expression never checked", "whenever", nil, true},
		{"invalid expression falls back to daily", "whenever", &twoHoursAgo, false},
		{"invalid expression overdue", "whenever", &dayAndHourAgo, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isDue(tt.schedule, tt.last); got != tt.want {
				t.Fatalf("isDue(%q, %v) = %v, want %v", tt.schedule, tt.last, got, tt.want)
			}
		})
	}
}
