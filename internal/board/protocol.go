package board

import (
	"fmt"
	"strconv"
	"strings"
)

// Reply is the parsed terminal line of a command response.
//
// Exactly one of the two shapes applies:
//   - Text reply: Value holds the text after "OK" ("" for a bare OK)
//   - JSON reply: JSON holds the raw single-line object (STATUS)
type Reply struct {
	Value string
	JSON  []byte
}

// IsTerminal reports whether a line ends a response per the protocol:
// "OK...", "ERR...", or a JSON object line. Comment lines ("#") and
// anything else are non-terminal and skipped by the reader.
func IsTerminal(line string) bool {
	return strings.HasPrefix(line, "OK") ||
		strings.HasPrefix(line, "ERR") ||
		strings.HasPrefix(line, "{")
}

// ParseReply parses a terminal response line.
//
// Device "ERR <message>" replies become *CommandError with the message
// verbatim. Lines that are not terminal are a protocol violation.
func ParseReply(line string) (Reply, error) {
	switch {
	case strings.HasPrefix(line, "{"):
		return Reply{JSON: []byte(line)}, nil

	case line == "OK":
		return Reply{}, nil

	case strings.HasPrefix(line, "OK "):
		return Reply{Value: strings.TrimSpace(line[3:])}, nil

	case line == "ERR":
		return Reply{}, &CommandError{Message: ""}

	case strings.HasPrefix(line, "ERR "):
		return Reply{}, &CommandError{Message: strings.TrimSpace(line[4:])}

	default:
		return Reply{}, fmt.Errorf("%w: unexpected reply %q", ErrProtocol, line)
	}
}

// parseBoolReply folds the device's boolean vocabularies into a bool:
// ON/OFF, HIGH/LOW, PRESSED/RELEASED, TRUE/FALSE, 1/0.
func parseBoolReply(value string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ON", "HIGH", "PRESSED", "TRUE", "1":
		return true, nil
	case "OFF", "LOW", "RELEASED", "FALSE", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: unexpected boolean reply %q", ErrProtocol, value)
	}
}

// parseIntReply parses a numeric reply, tolerating the firmware's
// float formatting ("55" and "55.0" both mean 55 percent).
func parseIntReply(value string) (int, error) {
	s := strings.TrimSpace(value)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected numeric reply %q", ErrProtocol, value)
	}
	return int(f + 0.5), nil
}

// parseFloatReply parses a voltage reply like "3.301".
func parseFloatReply(value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected voltage reply %q", ErrProtocol, value)
	}
	return f, nil
}
