package board

import (
	"fmt"
	"strings"
)

// Output and LED brightness bounds (percent).
const (
	minPercent = 0
	maxPercent = 100
)

// Command is a single board command ready for the wire.
// Construct via the typed constructors, which validate value domains
// before any wire contact. Index upper bounds are checked by the Link
// against the discovered Capabilities.
type Command struct {
	Verb string
	Args []string
}

// Encode renders the command as a newline-terminated protocol line.
func (c Command) Encode() string {
	if len(c.Args) == 0 {
		return c.Verb + "\n"
	}
	return c.Verb + " " + strings.Join(c.Args, " ") + "\n"
}

// String returns the command without the trailing newline, for logging.
func (c Command) String() string {
	return strings.TrimSuffix(c.Encode(), "\n")
}

// SetRelayCmd builds a RELAY set command. Indices are 1-based.
func SetRelayCmd(index int, on bool) (Command, error) {
	if err := checkIndex("relay index", index); err != nil {
		return Command{}, err
	}
	state := "OFF"
	if on {
		state = "ON"
	}
	return Command{Verb: "RELAY", Args: []string{fmt.Sprintf("%d", index), state}}, nil
}

// QueryRelayCmd builds a RELAY query command.
func QueryRelayCmd(index int) (Command, error) {
	if err := checkIndex("relay index", index); err != nil {
		return Command{}, err
	}
	return Command{Verb: "RELAY", Args: []string{fmt.Sprintf("%d?", index)}}, nil
}

// SetOutputCmd builds an OUTPUT set command with a PWM percentage (0-100).
func SetOutputCmd(index, value int) (Command, error) {
	if err := checkIndex("output index", index); err != nil {
		return Command{}, err
	}
	if value < minPercent || value > maxPercent {
		return Command{}, &ValidationError{Field: "output value", Value: value, Reason: "must be 0-100"}
	}
	return Command{Verb: "OUTPUT", Args: []string{fmt.Sprintf("%d", index), fmt.Sprintf("%d", value)}}, nil
}

// QueryOutputCmd builds an OUTPUT query command.
func QueryOutputCmd(index int) (Command, error) {
	if err := checkIndex("output index", index); err != nil {
		return Command{}, err
	}
	return Command{Verb: "OUTPUT", Args: []string{fmt.Sprintf("%d?", index)}}, nil
}

// QueryInputCmd builds an INPUT query command.
func QueryInputCmd(index int) (Command, error) {
	if err := checkIndex("input index", index); err != nil {
		return Command{}, err
	}
	return Command{Verb: "INPUT", Args: []string{fmt.Sprintf("%d?", index)}}, nil
}

// QueryADCCmd builds an ADC query command.
func QueryADCCmd(index int) (Command, error) {
	if err := checkIndex("adc index", index); err != nil {
		return Command{}, err
	}
	return Command{Verb: "ADC", Args: []string{fmt.Sprintf("%d?", index)}}, nil
}

// SetLEDCmd builds a LED brightness command for button A or B.
func SetLEDCmd(button string, brightness int) (Command, error) {
	b, err := normaliseButton(button)
	if err != nil {
		return Command{}, err
	}
	if brightness < minPercent || brightness > maxPercent {
		return Command{}, &ValidationError{Field: "led brightness", Value: brightness, Reason: "must be 0-100"}
	}
	return Command{Verb: "LED", Args: []string{b, fmt.Sprintf("%d", brightness)}}, nil
}

// QueryButtonCmd builds a BUTTON query command for button A or B.
func QueryButtonCmd(button string) (Command, error) {
	b, err := normaliseButton(button)
	if err != nil {
		return Command{}, err
	}
	return Command{Verb: "BUTTON", Args: []string{b + "?"}}, nil
}

// StatusCmd builds a STATUS command.
func StatusCmd() Command { return Command{Verb: "STATUS"} }

// ResetCmd builds a RESET command (all relays and outputs off).
func ResetCmd() Command { return Command{Verb: "RESET"} }

// VersionCmd builds a VERSION command.
func VersionCmd() Command { return Command{Verb: "VERSION"} }

// PingCmd builds a PING command.
func PingCmd() Command { return Command{Verb: "PING"} }

// HelpCmd builds a HELP command.
func HelpCmd() Command { return Command{Verb: "HELP"} }

// checkIndex rejects indices below the protocol's 1-based minimum.
// The upper bound depends on discovered capabilities and is enforced
// by the Link.
func checkIndex(field string, index int) error {
	if index < 1 {
		return &ValidationError{Field: field, Value: index, Reason: "indices are 1-based"}
	}
	return nil
}

// normaliseButton validates and upper-cases a button name.
func normaliseButton(button string) (string, error) {
	b := strings.ToUpper(strings.TrimSpace(button))
	if b != "A" && b != "B" {
		return "", &ValidationError{Field: "button", Value: button, Reason: "must be A or B"}
	}
	return b, nil
}
