package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/spotmarket/slot-reservation/internal/booking"
)

// getUserID extracts the user_id stored by the JWT middleware and
// converts it to uint64.  The concrete type depends on how the token
// was minted, so several numeric and string forms are accepted.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// parsePeriod reads RFC 3339 "from" and "to" values into UTC times.
func parsePeriod(fromStr, toStr string) (from, to time.Time, err error) {
	from, err = time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from must be an RFC 3339 timestamp")
	}
	to, err = time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to must be an RFC 3339 timestamp")
	}
	return from.UTC(), to.UTC(), nil
}

// bookingError translates the booking package's sentinel errors into
// HTTP responses.  Internal storage detail never leaks to clients; only
// the category and the sentinel's message do.
func bookingError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrAlreadyFinalized),
		errors.Is(err, booking.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrPaymentRejected):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrStorage):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable, retry later"})
	default:
		c.Logger().Errorf("unhandled booking error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
