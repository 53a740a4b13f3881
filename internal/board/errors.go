package board

import (
	"errors"
	"fmt"
)

// Sentinel errors for board operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a command is attempted while the
	// link is not in the connected state.
	ErrNotConnected = errors.New("board: not connected")

	// ErrConnectionFailed is returned when opening or validating the
	// serial transport fails, or when an I/O error breaks the link.
	ErrConnectionFailed = errors.New("board: connection failed")

	// ErrTimeout is returned when a command's overall deadline elapses
	// before a terminal reply line arrives.
	ErrTimeout = errors.New("board: command timed out")

	// ErrProtocol is returned when the device sends a malformed or
	// unparseable reply.
	ErrProtocol = errors.New("board: protocol error")

	// ErrNoPort is returned when auto-detection finds no candidate
	// serial port.
	ErrNoPort = errors.New("board: no board port found")
)

// CommandError is returned when the device answers a command with an
// "ERR <message>" reply. Message carries the device's text verbatim.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("board: device error: %s", e.Message)
}

// ValidationError is returned when an index or value is outside its
// contract range. It is raised before any wire contact.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("board: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
