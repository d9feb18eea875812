package database

import (
	"errors"

	"github.com/jinzhu/gorm"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("database: not found")

	// ErrStatusConflict is returned when a compare-and-set on an action's
	// status (or execution claim) finds the row in a different state.
	ErrStatusConflict = errors.New("database: action status changed concurrently")

	// ErrIllegalTransition is returned when the requested from/to pair is
	// not an edge of the action state machine.
	ErrIllegalTransition = errors.New("database: illegal status transition")

	// ErrInsufficientStock is returned when a disposal exceeds on-hand stock.
	ErrInsufficientStock = errors.New("database: insufficient stock")
)

func notFound(err error) error {
	if gorm.IsRecordNotFoundError(err) {
		return ErrNotFound
	}
	return err
}
