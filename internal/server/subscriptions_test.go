package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/result"
	"github.com/mohammad-safakhou/scout/internal/store"
	"github.com/mohammad-safakhou/scout/internal/subscription"
)

func newSubscriptionsHandler(t *testing.T) (*SubscriptionsHandler, *subscription.Store, sqlmock.Sqlmock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	subs := subscription.NewStore(client, config.NotificationsConfig{})

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &SubscriptionsHandler{Subs: subs, Store: &store.Store{DB: db}}, subs, mock
}

func TestCreateSubscriptionDefaults(t *testing.T) {
	e := echo.New()
	handler, subs, mock := newSubscriptionsHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT email FROM users WHERE id=$1`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("acct@example.com"))

	req := jsonRequest(http.MethodPost, "/api/subscriptions",
		`{"keywords":["golang"],"platforms":["reddit","github"]}`)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := handler.create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}

	var resp IDResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" {
		t.Fatalf("expected generated id")
	}

	saved, err := subs.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("loading saved subscription: %v", err)
	}
	if saved.Email != "acct@example.com" {
		t.Fatalf("expected account email fallback, got %q", saved.Email)
	}
	if saved.Schedule != "@hourly" {
		t.Fatalf("expected default schedule @hourly, got %q", saved.Schedule)
	}
	if !saved.Active {
		t.Fatalf("new subscriptions start active")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateSubscriptionKeepsExplicitEmail(t *testing.T) {
	e := echo.New()
	handler, subs, _ := newSubscriptionsHandler(t)

	req := jsonRequest(http.MethodPost, "/api/subscriptions",
		`{"keywords":["golang"],"platforms":["reddit"],"email":"other@example.com","schedule":"@daily"}`)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := handler.create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	var resp IDResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	saved, err := subs.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("loading saved subscription: %v", err)
	}
	if saved.Email != "other@example.com" || saved.Schedule != "@daily" {
		t.Fatalf("explicit fields overridden: %+v", saved)
	}
}

func TestCreateSubscriptionValidation(t *testing.T) {
	e := echo.New()
	handler, _, _ := newSubscriptionsHandler(t)

	req := jsonRequest(http.MethodPost, "/api/subscriptions", `{"keywords":[],"platforms":["reddit"]}`)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	err := handler.create(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestListSubscriptionsScopedToUser(t *testing.T) {
	e := echo.New()
	handler, subs, _ := newSubscriptionsHandler(t)
	ctx := context.Background()

	mine := subscription.Subscription{
		ID: "sub-mine", UserID: "user-1", Keywords: []string{"golang"},
		Platforms: []string{"reddit"}, Schedule: "@hourly", Active: true,
		CreatedAt: time.Now().UTC(),
	}
	theirs := mine
	theirs.ID = "sub-theirs"
	theirs.UserID = "user-2"
	for _, sub := range []subscription.Subscription{mine, theirs} {
		if err := subs.Save(ctx, sub); err != nil {
			t.Fatalf("saving: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	rec := httptest.NewRecorder()
	ectx := e.NewContext(req, rec)
	ectx.Set("user_id", "user-1")

	if err := handler.list(ectx); err != nil {
		t.Fatalf("list: %v", err)
	}
	var resp []subscription.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "sub-mine" {
		t.Fatalf("expected only own subscription, got %+v", resp)
	}
}

func TestListSubscriptionsEmptyIsArray(t *testing.T) {
	e := echo.New()
	handler, _, _ := newSubscriptionsHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := handler.list(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Fatalf("expected empty JSON array, got %q", body)
	}
}

func TestRemoveSubscription(t *testing.T) {
	e := echo.New()
	handler, subs, _ := newSubscriptionsHandler(t)
	ctx := context.Background()

	sub := subscription.Subscription{
		ID: "sub-1", UserID: "user-1", Keywords: []string{"golang"},
		Platforms: []string{"reddit"}, Schedule: "@hourly", Active: true,
		CreatedAt: time.Now().UTC(),
	}
	if err := subs.Save(ctx, sub); err != nil {
		t.Fatalf("saving: %v", err)
	}

	// foreign user cannot delete it
	req := httptest.NewRequest(http.MethodDelete, "/api/subscriptions/sub-1", nil)
	rec := httptest.NewRecorder()
	ectx := e.NewContext(req, rec)
	ectx.Set("user_id", "user-2")
	ectx.SetParamNames("id")
	ectx.SetParamValues("sub-1")

	err := handler.remove(ectx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign user, got %v", err)
	}
	if _, err := subs.Get(ctx, "sub-1"); err != nil {
		t.Fatalf("subscription should survive foreign delete: %v", err)
	}

	// owner can
	req = httptest.NewRequest(http.MethodDelete, "/api/subscriptions/sub-1", nil)
	rec = httptest.NewRecorder()
	ectx = e.NewContext(req, rec)
	ectx.Set("user_id", "user-1")
	ectx.SetParamNames("id")
	ectx.SetParamValues("sub-1")

	if err := handler.remove(ectx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	if _, err := subs.Get(ctx, "sub-1"); err != subscription.ErrNotFound {
		t.Fatalf("expected subscription gone, got %v", err)
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	e := echo.New()
	handler, subs, _ := newSubscriptionsHandler(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 22, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		n := subscription.Notification{
			SubscriptionID:  "sub-1",
			UserID:          "user-1",
			NewResultsCount: i + 1,
			Results: []result.ScoredResult{{
				RawResult:      result.RawResult{Title: "hit", URL: "https://example.com", Platform: "reddit"},
				RelevanceScore: 8,
			}},
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Keywords:  []string{"golang"},
			Platforms: []string{"reddit"},
		}
		if err := subs.PushNotification(ctx, n); err != nil {
			t.Fatalf("pushing: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	ectx := e.NewContext(req, rec)
	ectx.Set("user_id", "user-1")

	if err := handler.notifications(ectx); err != nil {
		t.Fatalf("notifications: %v", err)
	}
	var resp []subscription.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 || resp[0].NewResultsCount != 2 {
		t.Fatalf("expected 2 notifications newest first, got %+v", resp)
	}

	// limit respected
	req = httptest.NewRequest(http.MethodGet, "/api/notifications?limit=1", nil)
	rec = httptest.NewRecorder()
	ectx = e.NewContext(req, rec)
	ectx.Set("user_id", "user-1")
	if err := handler.notifications(ectx); err != nil {
		t.Fatalf("notifications with limit: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(resp))
	}

	// bad limit rejected
	req = httptest.NewRequest(http.MethodGet, "/api/notifications?limit=abc", nil)
	rec = httptest.NewRecorder()
	ectx = e.NewContext(req, rec)
	ectx.Set("user_id", "user-1")
	err := handler.notifications(ectx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %v", err)
	}
}
