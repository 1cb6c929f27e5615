package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/motorbid/vehicle-auction/internal/importer"
)

// ImportRunner is the slice of the importer the HTTP layer needs.
type ImportRunner interface {
	Run(ctx context.Context) (importer.RunResult, error)
}

// ImportHandler exposes on-demand vendor import runs to admins.
type ImportHandler struct {
	Importer ImportRunner
}

func NewImportHandler(imp ImportRunner) *ImportHandler {
	return &ImportHandler{Importer: imp}
}

// Trigger handles POST /v1/admin/import. Runs a full import pass inline and
// returns its counters. 503 when no vendor feed is configured.
func (h *ImportHandler) Trigger(c echo.Context) error {
	if h.Importer == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "import is not configured"})
	}
	res, err := h.Importer.Run(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "import run failed", "result": res})
	}
	return c.JSON(http.StatusOK, echo.Map{"result": res})
}
