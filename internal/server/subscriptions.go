package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/scout/internal/store"
	"github.com/mohammad-safakhou/scout/internal/subscription"
)

type SubscriptionsHandler struct {
	Subs  *subscription.Store
	Store *store.Store
}

func (h *SubscriptionsHandler) Register(api *echo.Group, secret []byte) {
	g := api.Group("/subscriptions")
	g.Use(authMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.DELETE("/:id", h.remove)

	n := api.Group("/notifications")
	n.Use(authMiddleware(secret))
	n.GET("", h.notifications)
}

// create registers a recurring search. The notification email falls back to
// the account email when the payload leaves it empty.
func (h *SubscriptionsHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req CreateSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	keywords, platforms, err := normalizeTerms(req.Keywords, req.Platforms)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	schedule := strings.TrimSpace(req.Schedule)
	if schedule == "" {
		schedule = "@hourly"
	}
	address := strings.TrimSpace(req.Email)
	if address == "" && h.Store != nil {
		address, err = h.Store.GetUserEmail(c.Request().Context(), userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	sub := subscription.Subscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     address,
		Keywords:  keywords,
		Platforms: platforms,
		Detail:    strings.TrimSpace(req.Detail),
		Schedule:  schedule,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Subs.Save(c.Request().Context(), sub); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: sub.ID})
}

func (h *SubscriptionsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Subs.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []subscription.Subscription{}
	}
	return c.JSON(http.StatusOK, items)
}

// remove deletes a subscription after checking it belongs to the caller.
func (h *SubscriptionsHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")

	sub, err := h.Subs.Get(c.Request().Context(), id)
	if errors.Is(err, subscription.ErrNotFound) || (err == nil && sub.UserID != userID) {
		return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Subs.Delete(c.Request().Context(), id); err != nil && !errors.Is(err, subscription.ErrNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SubscriptionsHandler) notifications(c echo.Context) error {
	userID := c.Get("user_id").(string)
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	items, err := h.Subs.ListNotifications(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
