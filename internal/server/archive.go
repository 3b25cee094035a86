package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/scout/internal/archive"
)

type ArchiveHandler struct {
	Archive *archive.Archive
}

func (h *ArchiveHandler) Register(api *echo.Group, secret []byte) {
	g := api.Group("/archive")
	g.Use(authMiddleware(secret))
	g.GET("/search", h.search)
}

// search queries the in-memory index over everything this instance has
// reported since it started.
func (h *ArchiveHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	k := 10
	if raw := c.QueryParam("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		k = n
	}
	hits, err := h.Archive.Search(q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if hits == nil {
		hits = []archive.Hit{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":   q,
		"indexed": h.Archive.Size(),
		"hits":    hits,
	})
}
