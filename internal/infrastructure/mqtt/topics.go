package mqtt

import "fmt"

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "automation"

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// All topics live under a configurable prefix:
//
//	topics := mqtt.NewTopics("automation")
//	topics.Status()   // "automation/status"
//	topics.Relay(1)   // "automation/relay/1"
//
// Channel topics carry the board's 1-based channel index.
//
// The zero value uses DefaultPrefix.
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics builder rooted at the given prefix.
// An empty prefix falls back to DefaultPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// Status returns the topic for periodic board status snapshots.
//
// Example: automation/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix())
}

// Relay returns the command topic for a single relay.
//
// Example: automation/relay/1
func (t Topics) Relay(index int) string {
	return fmt.Sprintf("%s/relay/%d", t.prefix(), index)
}

// Output returns the command topic for a single PWM output.
//
// Example: automation/output/2
func (t Topics) Output(index int) string {
	return fmt.Sprintf("%s/output/%d", t.prefix(), index)
}

// Input returns the event topic for a single digital input.
//
// Example: automation/input/3
func (t Topics) Input(index int) string {
	return fmt.Sprintf("%s/input/%d", t.prefix(), index)
}

// Command returns the board-level command topic (RESET, STATUS).
//
// Example: automation/command
func (t Topics) Command() string {
	return fmt.Sprintf("%s/command", t.prefix())
}

// BridgeStatus returns the bridge availability topic used for the
// online/offline announcements and the Last Will message.
//
// Example: automation/bridge/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.prefix())
}

// AllRelays returns a pattern matching all relay command topics.
//
// Pattern: automation/relay/+
func (t Topics) AllRelays() string {
	return fmt.Sprintf("%s/relay/+", t.prefix())
}

// AllOutputs returns a pattern matching all output command topics.
//
// Pattern: automation/output/+
func (t Topics) AllOutputs() string {
	return fmt.Sprintf("%s/output/+", t.prefix())
}
