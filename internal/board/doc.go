// Package board implements the serial protocol and link management for the
// automation I/O board.
//
// This package manages:
//   - Encoding commands and parsing replies for the board's line protocol
//   - Port discovery by USB vendor ID with name-pattern fallback
//   - A serialised one-command-in-flight link with per-command deadlines
//   - A passive connection state machine (Disconnected/Connected/Faulted)
//
// # Wire Protocol
//
// Commands are single ASCII lines terminated by "\n":
//
//	RELAY <n> <ON|OFF>     set relay (1-based index)
//	RELAY <n>?             query relay state
//	OUTPUT <n> <0-100>     set output PWM percent
//	OUTPUT <n>?            query output value
//	INPUT <n>?             query digital input
//	ADC <n>?               query ADC voltage
//	LED <A|B> <0-100>      set button LED brightness
//	BUTTON <A|B>?          query button state
//	STATUS                 full state as one JSON line
//	RESET                  all relays/outputs off
//	VERSION, PING, HELP
//
// Replies are "OK", "OK <value>", "ERR <message>", or a single JSON object
// line starting with "{". Lines starting with "#" are banner/comment output
// and are skipped; any other line is ignored until a terminal line arrives.
//
// # Connection Lifecycle
//
// The Link never reconnects on its own. A command timeout or I/O error moves
// it to Faulted with a retry-at timestamp; the owning service observes the
// state and calls Connect again once the retry window has passed.
//
// Channel counts are not hardcoded: they are discovered from the first STATUS
// reply at connect time and exposed via Capabilities.
package board
