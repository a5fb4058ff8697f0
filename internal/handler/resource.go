package handler

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/spotmarket/slot-reservation/internal/model"
	"github.com/spotmarket/slot-reservation/internal/repository"
	"github.com/spotmarket/slot-reservation/internal/slot"
)

// ResourceHandler lets merchants register and inspect their bookable
// resources, and serves the public resource detail view.
type ResourceHandler struct {
	Resources *repository.ResourceRepo
}

// NewResourceHandler constructs a ResourceHandler and panics if the
// repository is nil.
func NewResourceHandler(resources *repository.ResourceRepo) *ResourceHandler {
	if resources == nil {
		panic("nil repository passed to NewResourceHandler")
	}
	return &ResourceHandler{Resources: resources}
}

var zoneCodeRe = regexp.MustCompile(`^[A-Z]{1,3}$`)

type resourceView struct {
	ID               uint64            `json:"id"`
	Kind             string            `json:"kind"`
	Name             string            `json:"name"`
	Address          string            `json:"address"`
	ContactNumber    string            `json:"contact_number"`
	RatePerHourCents int64             `json:"rate_per_hour_cents"`
	Is24x7           bool              `json:"is_24x7"`
	OpeningHours     []model.DayWindow `json:"opening_hours,omitempty"`
	CapacityByZone   map[string]uint32 `json:"capacity_by_zone,omitempty"`
	IsActive         bool              `json:"is_active"`
	CreatedAt        time.Time         `json:"created_at"`
}

func resourceViewOf(r *model.Resource) resourceView {
	return resourceView{
		ID:               r.ID,
		Kind:             string(r.Kind),
		Name:             r.Name,
		Address:          r.Address,
		ContactNumber:    r.ContactNumber,
		RatePerHourCents: r.RatePerHourCents,
		Is24x7:           r.Is24x7,
		OpeningHours:     r.OpeningHours,
		CapacityByZone:   r.CapacityByZone,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt,
	}
}

// Register handles POST /v1/resources.  A merchant declares a resource
// with its kind, rate, opening hours and per-zone slot capacities.
func (h *ResourceHandler) Register(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Kind             string            `json:"kind"`
		Name             string            `json:"name"`
		Address          string            `json:"address"`
		ContactNumber    string            `json:"contact_number"`
		RatePerHourCents int64             `json:"rate_per_hour_cents"`
		Is24x7           bool              `json:"is_24x7"`
		OpeningHours     []model.DayWindow `json:"opening_hours"`
		CapacityByZone   map[string]uint32 `json:"capacity_by_zone"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if !model.ValidKind(model.ResourceKind(body.Kind)) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "kind must be GARAGE, PARKING or RESIDENCE"})
	}
	if body.Name == "" || body.Address == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and address are required"})
	}
	if body.RatePerHourCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rate_per_hour_cents must be positive"})
	}
	if len(body.CapacityByZone) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one zone is required"})
	}
	for zone, capacity := range body.CapacityByZone {
		if !zoneCodeRe.MatchString(zone) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "zone codes must be 1-3 uppercase letters"})
		}
		if capacity == 0 || capacity > slot.MaxIndex {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "zone capacity must be between 1 and " + strconv.Itoa(slot.MaxIndex),
			})
		}
	}
	if !body.Is24x7 && len(body.OpeningHours) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "opening_hours is required unless the resource is 24x7"})
	}

	res := &model.Resource{
		OwnerID:          ownerID,
		Kind:             model.ResourceKind(body.Kind),
		Name:             body.Name,
		Address:          body.Address,
		ContactNumber:    body.ContactNumber,
		RatePerHourCents: body.RatePerHourCents,
		Is24x7:           body.Is24x7,
		OpeningHours:     body.OpeningHours,
		CapacityByZone:   body.CapacityByZone,
		IsActive:         true,
	}
	if err := h.Resources.Create(c.Request().Context(), res); err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusCreated, resourceViewOf(res))
}

// Get handles GET /v1/resources/:id, the public resource detail view.
func (h *ResourceHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid resource id"})
	}
	res, err := h.Resources.GetByID(c.Request().Context(), id)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, resourceViewOf(res))
}

// ListMine handles GET /v1/merchant/resources and returns the resources
// owned by the calling merchant.
func (h *ResourceHandler) ListMine(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Resources.ListByOwner(c.Request().Context(), ownerID)
	if err != nil {
		return bookingError(c, err)
	}
	views := make([]resourceView, 0, len(list))
	for i := range list {
		views = append(views, resourceViewOf(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"resources": views})
}
