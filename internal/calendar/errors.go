package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSelection is returned by actions that need a selected slot.
	ErrNoSelection = errors.New("calendar: no slot selected")

	// ErrUnknownSlot is returned when a slot id is not in the loaded inventory.
	ErrUnknownSlot = errors.New("calendar: slot not in inventory")

	// ErrInvalidDirection is returned for an unrecognized navigation.
	ErrInvalidDirection = errors.New("calendar: invalid direction")
)

// ActionError is a failed action on the selected slot. The selection and
// detail panel are left as they were.
type ActionError struct {
	Action string
	SlotID int64
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("calendar: %s slot %d: %v", e.Action, e.SlotID, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
