package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/scout/internal/archive"
	"github.com/mohammad-safakhou/scout/internal/pipeline"
	"github.com/mohammad-safakhou/scout/internal/store"
)

type SearchHandler struct {
	Store    *store.Store
	Pipeline *pipeline.Pipeline
	Archive  *archive.Archive
}

func (h *SearchHandler) Register(api *echo.Group, secret []byte) {
	g := api.Group("")
	g.Use(authMiddleware(secret))
	g.POST("/search", h.run)
	g.GET("/searches", h.list)
	g.GET("/searches/:id", h.get)
	g.GET("/searches/:id/report", h.report)
	g.GET("/reports", h.reports)
}

// run executes the full dispatch/filter/summarize pass, persists the search
// and its report, and feeds the archive index.
func (h *SearchHandler) run(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	keywords, platforms, err := normalizeTerms(req.Keywords, req.Platforms)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	detail := strings.TrimSpace(req.Detail)

	ctx := c.Request().Context()
	report := h.Pipeline.Run(ctx, pipeline.Request{
		Keywords:  keywords,
		Platforms: platforms,
		Detail:    detail,
	})

	searchID, err := h.Store.CreateSearch(ctx, userID, keywords, platforms, detail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	reportID, err := h.Store.SaveReport(ctx, searchID, report)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Archive != nil {
		if err := h.Archive.AddReport(report); err != nil {
			log.Printf("archive index error: %v", err)
		}
	}
	return c.JSON(http.StatusOK, SearchResponse{SearchID: searchID, ReportID: reportID, Report: report})
}

func (h *SearchHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListSearches(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]SearchSummary, 0, len(items))
	for _, item := range items {
		out = append(out, SearchSummary{
			ID:        item.ID,
			Keywords:  item.Keywords,
			Platforms: item.Platforms,
			Detail:    item.Detail,
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SearchHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	item, err := h.Store.GetSearch(ctx, c.Param("id"), userID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "search not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := SearchSummary{
		ID:        item.ID,
		Keywords:  item.Keywords,
		Platforms: item.Platforms,
		Detail:    item.Detail,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if ts, err := h.Store.LatestReportTime(ctx, item.ID); err == nil && ts != nil {
		out.LastReportAt = ts.UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, out)
}

// report returns the newest stored report for a search as raw JSON payload.
func (h *SearchHandler) report(c echo.Context) error {
	userID := c.Get("user_id").(string)
	rec, err := h.Store.LatestReport(c.Request().Context(), c.Param("id"), userID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSONBlob(http.StatusOK, rec.Payload)
}

func (h *SearchHandler) reports(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListReports(c.Request().Context(), userID, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ReportSummary, 0, len(items))
	for _, item := range items {
		out = append(out, ReportSummary{
			ID:           item.ID,
			SearchID:     item.SearchID,
			Summary:      item.Summary,
			TotalResults: item.TotalResults,
			CreatedAt:    item.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// normalizeTerms trims entries, drops empties and requires at least one
// keyword and one platform.
func normalizeTerms(keywords, platforms []string) ([]string, []string, error) {
	cleanKeywords := cleanList(keywords)
	if len(cleanKeywords) == 0 {
		return nil, nil, errors.New("at least one keyword required")
	}
	cleanPlatforms := cleanList(platforms)
	if len(cleanPlatforms) == 0 {
		return nil, nil, errors.New("at least one platform required")
	}
	return cleanKeywords, cleanPlatforms, nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
