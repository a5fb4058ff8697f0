// Package repository implements the MySQL persistence layer.  Row-absent
// and write-conflict conditions are translated into the booking package's
// sentinel errors so callers never inspect driver errors themselves.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/spotmarket/slot-reservation/internal/booking"
)

// MySQL server error numbers signalling that a transaction lost a race
// and should be re-executed as a whole.
const (
	erLockDeadlock    = 1213
	erLockWaitTimeout = 1205
)

// mapStorageErr converts retryable driver failures into
// booking.ErrStorageConflict and passes everything else through.
func mapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == erLockDeadlock || me.Number == erLockWaitTimeout) {
		return fmt.Errorf("%w: %s", booking.ErrStorageConflict, me.Message)
	}
	return err
}
