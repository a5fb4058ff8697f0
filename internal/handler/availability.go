package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/spotmarket/slot-reservation/internal/booking"
	"github.com/spotmarket/slot-reservation/internal/model"
)

// AvailabilityHandler serves the public availability view.  The counts
// are advisory: a slot shown as free can still be lost to a concurrent
// confirmation, which is why confirm re-checks under the slot lock.
type AvailabilityHandler struct {
	Engine *booking.Engine
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(engine *booking.Engine) *AvailabilityHandler {
	if engine == nil {
		panic("nil engine passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Engine: engine}
}

// Get handles GET /v1/resources/:id/availability?from=...&to=...
// It returns the free slot count per zone over the requested period and
// whether the resource is currently open.
func (h *AvailabilityHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid resource id"})
	}
	from, to, err := parsePeriod(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	avail, err := h.Engine.Availability(c.Request().Context(), id, model.TimeRange{From: from, To: to})
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"resource_id":       id,
		"available_by_zone": avail.AvailableByZone,
		"open":              avail.Open,
	})
}
