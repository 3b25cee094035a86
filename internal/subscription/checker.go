package subscription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/email"
	"github.com/mohammad-safakhou/scout/internal/pipeline"
	"github.com/mohammad-safakhou/scout/internal/result"
)

const (
	checkLockPrefix = "check:lock:"
	checkLockTTL    = 2 * time.Minute

	// notificationResultLimit caps how many results a single notification
	// payload (and email) carries.
	notificationResultLimit = 10
)

// Runner runs one search request end to end. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) result.Report
}

// Checker wakes on an interval, re-runs every active subscription that is
// due and notifies on results not seen in earlier checks.
type Checker struct {
	store  *Store
	runner Runner
	mailer *email.Sender
	cfg    config.NotificationsConfig
	logger *log.Logger
	stop   chan struct{}
}

func NewChecker(store *Store, runner Runner, mailer *email.Sender, cfg config.NotificationsConfig) *Checker {
	return &Checker{
		store:  store,
		runner: runner,
		mailer: mailer,
		cfg:    cfg.Normalize(),
		logger: log.New(log.Writer(), "[CHECKER] ", log.LstdFlags),
		stop:   make(chan struct{}),
	}
}

// Start launches the ticker loop in a goroutine. Stop terminates it.
func (c *Checker) Start() {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	go func() {
		for {
			select {
			case <-c.stop:
				ticker.Stop()
				return
			case <-ticker.C:
				c.tick(context.Background())
			}
		}
	}()
}

func (c *Checker) Stop() { close(c.stop) }

func (c *Checker) tick(ctx context.Context) {
	subs, err := c.store.ListActive(ctx)
	if err != nil {
		c.logger.Printf("listing subscriptions: %v", err)
		return
	}
	for _, sub := range subs {
		if !isDue(sub.Schedule, sub.LastChecked) {
			continue
		}

		// distributed lock so concurrent instances do not double-check
		lockKey := checkLockPrefix + sub.ID
		ok, _ := c.store.client.SetNX(ctx, lockKey, "1", checkLockTTL).Result()
		if !ok {
			continue
		}

		go func(sub Subscription, lockKey string) {
			defer c.store.client.Del(context.Background(), lockKey)
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)
			if _, err := c.Check(context.Background(), sub); err != nil {
				c.logger.Printf("checking subscription %s: %v", sub.ID, err)
			}
		}(sub, lockKey)
	}
}

// RunOnce checks every due subscription synchronously and returns the total
// number of new results found across all of them.
func (c *Checker) RunOnce(ctx context.Context) (int, error) {
	subs, err := c.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, sub := range subs {
		if !isDue(sub.Schedule, sub.LastChecked) {
			continue
		}
		n, err := c.Check(ctx, sub)
		if err != nil {
			c.logger.Printf("checking subscription %s: %v", sub.ID, err)
			continue
		}
		total += n
	}
	return total, nil
}

// Check runs one subscription now and returns how many results were new.
// New results are recorded as seen only after the notification is stored, so
// a failed check surfaces the same results again next time.
func (c *Checker) Check(ctx context.Context, sub Subscription) (int, error) {
	started := time.Now()
	report := c.runner.Run(ctx, pipeline.Request{
		Keywords:  sub.Keywords,
		Platforms: sub.Platforms,
		Detail:    sub.Detail,
	})

	platforms := make([]string, 0, len(report.ResultsByPlatform))
	for platform := range report.ResultsByPlatform {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	type marker struct{ platform, url string }
	var fresh []result.ScoredResult
	var markers []marker
	for _, platform := range platforms {
		for _, item := range report.ResultsByPlatform[platform] {
			if item.URL == "" {
				continue
			}
			seen, err := c.store.IsSeen(ctx, platform, item.URL)
			if err != nil {
				return 0, fmt.Errorf("reading seen marker: %w", err)
			}
			if seen {
				continue
			}
			fresh = append(fresh, item)
			markers = append(markers, marker{platform: platform, url: item.URL})
		}
	}

	now := time.Now().UTC()
	if err := c.store.Touch(ctx, sub.ID, now); err != nil && !errors.Is(err, ErrNotFound) {
		c.logger.Printf("warning: updating last_checked for %s: %v", sub.ID, err)
	}

	if len(fresh) == 0 {
		c.logger.Printf("subscription %s: nothing new (%s)", sub.ID, time.Since(started).Round(time.Millisecond))
		return 0, nil
	}

	preview := fresh
	if len(preview) > notificationResultLimit {
		preview = preview[:notificationResultLimit]
	}
	notification := Notification{
		SubscriptionID:  sub.ID,
		UserID:          sub.UserID,
		NewResultsCount: len(fresh),
		Results:         preview,
		Timestamp:       now,
		Keywords:        sub.Keywords,
		Platforms:       sub.Platforms,
	}
	if err := c.store.PushNotification(ctx, notification); err != nil {
		return 0, fmt.Errorf("storing notification: %w", err)
	}
	for _, m := range markers {
		if err := c.store.MarkSeen(ctx, m.platform, m.url); err != nil {
			c.logger.Printf("warning: marking %s seen: %v", m.url, err)
		}
	}

	if c.mailer != nil && c.mailer.Enabled() && sub.Email != "" {
		if err := c.mailer.SendNewResults(sub.Email, sub.Keywords, sub.Platforms, preview, len(fresh)); err != nil {
			c.logger.Printf("warning: notifying %s by email: %v", sub.Email, err)
		}
	}

	c.logger.Printf("subscription %s: %d new results (%s)", sub.ID, len(fresh), time.Since(started).Round(time.Millisecond))
	return len(fresh), nil
}

// isDue reports whether a subscription with the given schedule should run now
// based on its last check time. Supports "@daily", "@hourly" and five-field
// cron expressions; invalid expressions fall back to daily.
func isDue(schedule string, last *time.Time) bool {
	now := time.Now()
	switch schedule {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(schedule)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}
