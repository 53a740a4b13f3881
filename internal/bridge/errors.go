package bridge

import "errors"

// Sentinel errors for MQTT message handling.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrBadTopic is returned when a topic's trailing channel segment
	// is missing or not a positive integer.
	ErrBadTopic = errors.New("bridge: malformed topic")

	// ErrBadPayload is returned when a command payload is not in the
	// accepted vocabulary or range.
	ErrBadPayload = errors.New("bridge: malformed payload")
)
