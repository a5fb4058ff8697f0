package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/spotmarket/slot-reservation/internal/booking"
	"github.com/spotmarket/slot-reservation/internal/model"
	"github.com/spotmarket/slot-reservation/internal/queue"
	queue_publisher "github.com/spotmarket/slot-reservation/internal/service"
)

// BookingHandler exposes the reservation lifecycle over HTTP: checkout,
// payment confirmation, cancellation and listing.  All methods assume
// JWT authentication and role validation already ran in middleware.
type BookingHandler struct {
	Engine    *booking.Engine
	Resources booking.ResourceProvider // for enriching the confirmed event
	Publish   bool                     // publish booking.confirmed events when true
}

// NewBookingHandler constructs a BookingHandler.  engine and resources
// must be non-nil.
func NewBookingHandler(engine *booking.Engine, resources booking.ResourceProvider, publish bool) *BookingHandler {
	if engine == nil || resources == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: engine, Resources: resources, Publish: publish}
}

// reservationView is the JSON representation of a reservation returned
// to clients.
type reservationView struct {
	ID            string        `json:"id"`
	ResourceID    uint64        `json:"resource_id"`
	SlotKey       string        `json:"slot_key"`
	PeriodFrom    time.Time     `json:"period_from"`
	PeriodTo      time.Time     `json:"period_to"`
	Pricing       model.Pricing `json:"pricing"`
	CouponCode    *string       `json:"coupon_code,omitempty"`
	VehicleNumber *string       `json:"vehicle_number,omitempty"`
	Status        string        `json:"status"`
	PaymentRef    *string       `json:"payment_ref,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func viewOf(r *model.Reservation) reservationView {
	return reservationView{
		ID:            r.ID,
		ResourceID:    r.ResourceID,
		SlotKey:       r.SlotKey,
		PeriodFrom:    r.Period.From,
		PeriodTo:      r.Period.To,
		Pricing:       r.Pricing,
		CouponCode:    r.CouponCode,
		VehicleNumber: r.VehicleNumber,
		Status:        string(r.Status),
		PaymentRef:    r.PaymentRef,
		PaidAt:        r.PaidAt,
		CreatedAt:     r.CreatedAt,
	}
}

// Checkout handles POST /v1/reservations.  It creates a PENDING
// reservation for one slot and period and returns the priced quote.
func (h *BookingHandler) Checkout(c echo.Context) error {
	customerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		ResourceID    uint64 `json:"resource_id"`
		Zone          string `json:"zone"`
		SlotIndex     uint32 `json:"slot_index"`
		From          string `json:"from"`
		To            string `json:"to"`
		CouponCode    string `json:"coupon_code"`
		VehicleNumber string `json:"vehicle_number"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	from, to, err := parsePeriod(body.From, body.To)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	r, err := h.Engine.Checkout(c.Request().Context(), booking.CheckoutInput{
		ResourceID:    body.ResourceID,
		Zone:          body.Zone,
		Index:         body.SlotIndex,
		Period:        model.TimeRange{From: from, To: to},
		CustomerID:    customerID,
		CouponCode:    body.CouponCode,
		VehicleNumber: body.VehicleNumber,
	})
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusCreated, viewOf(r))
}

// Confirm handles POST /v1/reservations/:id/confirm.  On success the
// reservation transitions to SUCCESS and a booking.confirmed event is
// published for downstream consumers.
func (h *BookingHandler) Confirm(c echo.Context) error {
	customerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := c.Param("id")
	var body struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()

	// Ownership check before attempting the charge.
	if _, err := h.Engine.Reservation(ctx, id, customerID); err != nil {
		return bookingError(c, err)
	}
	r, err := h.Engine.Confirm(ctx, id, body.PaymentRef)
	if err != nil {
		return bookingError(c, err)
	}
	if h.Publish {
		h.publishConfirmed(r)
	}
	return c.JSON(http.StatusOK, viewOf(r))
}

// publishConfirmed emits the booking.confirmed event in the background.
// Broker downtime must never fail a paid confirmation.
func (h *BookingHandler) publishConfirmed(r *model.Reservation) {
	resourceName := ""
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if res, err := h.Resources.GetByID(ctx, r.ResourceID); err == nil {
		resourceName = res.Name
	}
	cancel()

	confirmedAt := ""
	if r.PaidAt != nil {
		confirmedAt = r.PaidAt.UTC().Format(time.RFC3339)
	}
	ev := queue.BookingConfirmedEvent{
		ReservationID:  r.ID,
		CustomerID:     r.CustomerID,
		ResourceID:     r.ResourceID,
		ResourceName:   resourceName,
		SlotKey:        r.SlotKey,
		PeriodFrom:     r.Period.From.UTC().Format(time.RFC3339),
		PeriodTo:       r.Period.To.UTC().Format(time.RFC3339),
		AmountDueCents: r.Pricing.AmountDueCents,
		ConfirmedAt:    confirmedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = queue_publisher.PublishBookingConfirmed(ctx, ev)
	}()
}

// Cancel handles POST /v1/reservations/:id/cancel.  Cancelling an
// already-failed reservation is a no-op; a paid one cannot be cancelled.
func (h *BookingHandler) Cancel(c echo.Context) error {
	customerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	r, err := h.Engine.Cancel(c.Request().Context(), c.Param("id"), customerID)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(r))
}

// Get handles GET /v1/reservations/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	customerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	r, err := h.Engine.Reservation(c.Request().Context(), c.Param("id"), customerID)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(r))
}

// List handles GET /v1/reservations and returns the caller's
// reservations, newest first.
func (h *BookingHandler) List(c echo.Context) error {
	customerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	rs, err := h.Engine.ReservationsByCustomer(c.Request().Context(), customerID)
	if err != nil {
		return bookingError(c, err)
	}
	views := make([]reservationView, 0, len(rs))
	for i := range rs {
		views = append(views, viewOf(&rs[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": views})
}
