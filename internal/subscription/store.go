// Package subscription keeps recurring searches in redis and re-runs them on
// a schedule, recording a notification whenever a check surfaces results that
// earlier checks had not seen.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/helpers"
	"github.com/mohammad-safakhou/scout/internal/result"
)

// ErrNotFound is returned when a subscription id has no record.
var ErrNotFound = errors.New("subscription not found")

const (
	subscriptionKeyPrefix  = "subscription:"
	seenKeyPrefix          = "result:"
	notificationKeyPrefix  = "notification:"
	notificationListPrefix = "notifications:"
)

// Conn opens a redis client and verifies the connection with a ping.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		DialTimeout: cfg.Timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	if pong != "PONG" {
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// Subscription is a saved search that the checker re-runs on a schedule.
// Schedule accepts "@hourly", "@daily" or a five-field cron expression.
type Subscription struct {
	ID          string     `json:"subscription_id"`
	UserID      string     `json:"user_id"`
	Email       string     `json:"email,omitempty"`
	Keywords    []string   `json:"keywords"`
	Platforms   []string   `json:"platforms"`
	Detail      string     `json:"detail,omitempty"`
	Schedule    string     `json:"schedule"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
}

// Notification records the outcome of a check that surfaced new results.
// Results holds a preview capped by the checker, NewResultsCount the full
// number of new items.
type Notification struct {
	SubscriptionID  string                `json:"subscription_id"`
	UserID          string                `json:"user_id"`
	NewResultsCount int                   `json:"new_results_count"`
	Results         []result.ScoredResult `json:"results"`
	Timestamp       time.Time             `json:"timestamp"`
	Keywords        []string              `json:"keywords"`
	Platforms       []string              `json:"platforms"`
}

// Store keeps subscriptions, seen-result markers and notifications in redis.
type Store struct {
	client     *redis.Client
	ttl        time.Duration
	maxPerUser int
}

// NewStore wraps an established redis client. Notification retention and the
// per-user cap come from the notifications config.
func NewStore(client *redis.Client, cfg config.NotificationsConfig) *Store {
	cfg = cfg.Normalize()
	return &Store{client: client, ttl: cfg.NotificationTTL, maxPerUser: cfg.MaxPerUser}
}

func subscriptionKey(id string) string { return subscriptionKeyPrefix + id }

// seenKey identifies one surfaced result. Platform is folded to lower case
// so markers match however the crawler spelled it; the URL is canonicalised
// and hashed so tracking-parameter variants of the same page share a marker.
func seenKey(platform, url string) string {
	return seenKeyPrefix + strings.ToLower(strings.TrimSpace(platform)) + ":" + helpers.URLFingerprint(url)
}

// Save upserts a subscription record.
func (s *Store) Save(ctx context.Context, sub Subscription) error {
	if strings.TrimSpace(sub.ID) == "" {
		return errors.New("subscription id required")
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, subscriptionKey(sub.ID), payload, 0).Err()
}

// Get loads one subscription by id.
func (s *Store) Get(ctx context.Context, id string) (Subscription, error) {
	raw, err := s.client.Get(ctx, subscriptionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, err
	}
	var sub Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return Subscription{}, fmt.Errorf("decoding subscription %s: %w", id, err)
	}
	return sub, nil
}

// Delete removes a subscription. Missing ids return ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, subscriptionKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every stored subscription, oldest first. Records that fail to
// decode are skipped rather than failing the whole listing.
func (s *Store) List(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	iter := s.client.Scan(ctx, 0, subscriptionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var sub Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

// ListActive returns subscriptions eligible for checking.
func (s *Store) ListActive(ctx context.Context) ([]Subscription, error) {
	subs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := subs[:0]
	for _, sub := range subs {
		if sub.Active {
			active = append(active, sub)
		}
	}
	return active, nil
}

// ListByUser returns one user's subscriptions, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Subscription, error) {
	subs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var mine []Subscription
	for _, sub := range subs {
		if sub.UserID == userID {
			mine = append(mine, sub)
		}
	}
	return mine, nil
}

// Touch records when a subscription was last checked.
func (s *Store) Touch(ctx context.Context, id string, when time.Time) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	when = when.UTC()
	sub.LastChecked = &when
	return s.Save(ctx, sub)
}

// IsSeen reports whether a result URL was already surfaced for a platform.
func (s *Store) IsSeen(ctx context.Context, platform, url string) (bool, error) {
	n, err := s.client.Exists(ctx, seenKey(platform, url)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen records a result URL so later checks skip it.
func (s *Store) MarkSeen(ctx context.Context, platform, url string) error {
	return s.client.Set(ctx, seenKey(platform, url), "1", 0).Err()
}

// PushNotification stores the payload under a timestamped key with the
// retention TTL and prepends that key to the user's notification list,
// trimmed to the per-user cap.
func (s *Store) PushNotification(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := notificationKeyPrefix + n.UserID + ":" + strconv.FormatInt(n.Timestamp.Unix(), 10)
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return err
	}
	list := notificationListPrefix + n.UserID
	if err := s.client.LPush(ctx, list, key).Err(); err != nil {
		return err
	}
	return s.client.LTrim(ctx, list, 0, int64(s.maxPerUser)-1).Err()
}

// ListNotifications returns a user's notifications, newest first. Keys whose
// retention has lapsed are skipped.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > s.maxPerUser {
		limit = s.maxPerUser
	}
	keys, err := s.client.LRange(ctx, notificationListPrefix+userID, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	notifications := make([]Notification, 0, len(keys))
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var n Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}
