package board

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Link constants.
const (
	// picoVendorID is the USB vendor ID of the Raspberry Pi Pico family
	// the board is built on, as reported by the enumerator.
	picoVendorID = "2E8A"

	// defaultBaud is the serial line speed when none is configured.
	defaultBaud = 115200

	// readChunkSize is the per-read buffer size for response scanning.
	readChunkSize = 256
)

// connectSettleDelay is the pause after opening the port before the first
// command. USB CDC devices reset on open and emit a startup banner; talking
// too early loses the first command. Variable so tests can shorten it.
var connectSettleDelay = 500 * time.Millisecond

// Port is the transport the Link drives. go.bug.st/serial's Port satisfies
// it; tests substitute an in-memory fake.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Injection points for port access, overridden in tests.
var (
	openPort = func(name string, baud int) (Port, error) {
		return serial.Open(name, &serial.Mode{BaudRate: baud})
	}
	listPorts = func() ([]*enumerator.PortDetails, error) {
		return enumerator.GetDetailedPortsList()
	}
)

// Logger is the minimal logging interface the Link needs.
// Satisfied by logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config contains link settings, derived from config.SerialConfig.
type Config struct {
	// Port is the serial device path. Empty means auto-detect.
	Port string

	// Baud is the serial line speed.
	Baud int

	// ReadTimeout bounds a single port read.
	ReadTimeout time.Duration

	// CommandTimeout bounds one full command round-trip.
	CommandTimeout time.Duration

	// ReconnectInterval is the minimum wait before a faulted link
	// becomes eligible for another Connect attempt.
	ReconnectInterval time.Duration
}

// LinkState is the connection state of the Link.
type LinkState int

// Link states. A Faulted link automatically reads as Disconnected once
// its retry window has passed; the Link itself never reconnects.
const (
	StateDisconnected LinkState = iota
	StateConnected
	StateFaulted
)

// String returns the lowercase state name.
func (s LinkState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return "disconnected"
	}
}

// Link manages the serial connection to the I/O board.
//
// All commands are serialised through an internal mutex: exactly one
// command is in flight at any time, and callers queue FIFO behind it.
// A command timeout or I/O error faults the link; the owning service
// observes State() and calls Connect once the retry window passes.
type Link struct {
	cfg    Config
	logger Logger

	mu       sync.Mutex
	port     Port
	pending  []byte // bytes read but not yet consumed as lines
	portName string
	version  string
	caps     Capabilities
	state    LinkState
	lastErr  error
	retryAt  time.Time
}

// NewLink creates a Link with the given configuration.
// Zero-value timeouts get conservative defaults.
func NewLink(cfg Config, logger Logger) *Link {
	if cfg.Baud <= 0 {
		cfg.Baud = defaultBaud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = cfg.ReadTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Link{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
	}
}

// Discover finds the board's serial port.
//
// USB vendor ID matching is tried first (the board is a Pico-family
// device), then a name-pattern fallback for platforms where the
// enumerator lacks USB details.
func Discover() (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("%w: enumerating ports: %v", ErrNoPort, err)
	}

	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, picoVendorID) {
			return p.Name, nil
		}
	}

	for _, p := range ports {
		if strings.Contains(p.Name, "ACM") || strings.Contains(p.Name, "usbmodem") {
			return p.Name, nil
		}
	}

	return "", ErrNoPort
}

// Connect opens the serial port and validates the board behind it.
//
// The sequence is: open at the configured baud, wait for the device to
// settle, drain startup noise, then PING (expect PONG), cache VERSION,
// and take one STATUS to discover channel counts. Any failure closes
// the port and faults the link.
//
// Connect on an already-connected link is a no-op.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateConnected {
		return nil
	}

	name := l.cfg.Port
	if name == "" {
		detected, err := Discover()
		if err != nil {
			l.faultLocked(err)
			return err
		}
		name = detected
	}

	port, err := openPort(name, l.cfg.Baud)
	if err != nil {
		err = fmt.Errorf("%w: opening %s: %v", ErrConnectionFailed, name, err)
		l.faultLocked(err)
		return err
	}

	// Let the device finish its USB reset before the first command.
	select {
	case <-time.After(connectSettleDelay):
	case <-ctx.Done():
		port.Close()
		return ctx.Err()
	}

	if err := port.SetReadTimeout(l.cfg.ReadTimeout); err != nil {
		port.Close()
		err = fmt.Errorf("%w: configuring %s: %v", ErrConnectionFailed, name, err)
		l.faultLocked(err)
		return err
	}

	l.port = port
	l.portName = name
	l.pending = nil

	// Validate the device: PING must answer PONG.
	reply, err := l.roundTripLocked(PingCmd())
	if err != nil || reply.Value != "PONG" {
		l.closePortLocked()
		if err == nil {
			err = fmt.Errorf("%w: unexpected ping reply %q", ErrConnectionFailed, reply.Value)
		} else {
			err = fmt.Errorf("%w: ping: %v", ErrConnectionFailed, err)
		}
		l.faultLocked(err)
		return err
	}

	if reply, err = l.roundTripLocked(VersionCmd()); err != nil {
		l.closePortLocked()
		err = fmt.Errorf("%w: version: %v", ErrConnectionFailed, err)
		l.faultLocked(err)
		return err
	}
	l.version = reply.Value

	// One STATUS fixes the channel counts for this session.
	if reply, err = l.roundTripLocked(StatusCmd()); err != nil {
		l.closePortLocked()
		err = fmt.Errorf("%w: status: %v", ErrConnectionFailed, err)
		l.faultLocked(err)
		return err
	}
	status, err := ParseStatus(reply.JSON)
	if err != nil {
		l.closePortLocked()
		err = fmt.Errorf("%w: status: %v", ErrConnectionFailed, err)
		l.faultLocked(err)
		return err
	}
	l.caps = status.Capabilities()

	l.state = StateConnected
	l.lastErr = nil
	if l.logger != nil {
		l.logger.Info("board connected",
			"port", l.portName,
			"firmware", l.version,
			"relays", l.caps.Relays,
			"outputs", l.caps.Outputs,
			"inputs", l.caps.Inputs,
			"adcs", l.caps.ADCs,
		)
	}
	return nil
}

// Disconnect closes the port and moves the link to Disconnected.
// Safe to call on an already-disconnected link.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closePortLocked()
	l.state = StateDisconnected
	return nil
}

// State returns the connection state. A Faulted link whose retry window
// has passed reads as Disconnected, signalling the owner to reconnect.
func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateFaulted && !time.Now().Before(l.retryAt) {
		return StateDisconnected
	}
	return l.state
}

// Connected reports whether the link is usable right now.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateConnected
}

// LastError returns the error that faulted the link, if any.
func (l *Link) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// PortName returns the serial port in use (or last used).
func (l *Link) PortName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.portName
}

// Version returns the firmware version cached at connect time.
func (l *Link) Version() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Capabilities returns the channel counts discovered at connect time.
func (l *Link) Capabilities() Capabilities {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.caps
}

// Do sends one command and returns the parsed reply.
//
// Commands are serialised: concurrent callers queue FIFO on the link
// mutex. A timeout or I/O failure faults the link; a device ERR reply
// does not (the command reached the board and was answered).
func (l *Link) Do(cmd Command) (Reply, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateConnected {
		return Reply{}, ErrNotConnected
	}
	return l.roundTripLocked(cmd)
}

// =============================================================================
// Typed helpers
// =============================================================================

// SetRelay switches a relay on or off. Index is 1-based.
func (l *Link) SetRelay(index int, on bool) error {
	if err := l.checkChannel("relay index", index, func(c Capabilities) int { return c.Relays }); err != nil {
		return err
	}
	cmd, err := SetRelayCmd(index, on)
	if err != nil {
		return err
	}
	_, err = l.Do(cmd)
	return err
}

// Relay reads the current state of a relay.
func (l *Link) Relay(index int) (bool, error) {
	if err := l.checkChannel("relay index", index, func(c Capabilities) int { return c.Relays }); err != nil {
		return false, err
	}
	cmd, err := QueryRelayCmd(index)
	if err != nil {
		return false, err
	}
	reply, err := l.Do(cmd)
	if err != nil {
		return false, err
	}
	return parseBoolReply(reply.Value)
}

// SetOutput sets a PWM output to a percentage (0-100).
func (l *Link) SetOutput(index, value int) error {
	if err := l.checkChannel("output index", index, func(c Capabilities) int { return c.Outputs }); err != nil {
		return err
	}
	cmd, err := SetOutputCmd(index, value)
	if err != nil {
		return err
	}
	_, err = l.Do(cmd)
	return err
}

// Output reads the current percentage of a PWM output.
func (l *Link) Output(index int) (int, error) {
	if err := l.checkChannel("output index", index, func(c Capabilities) int { return c.Outputs }); err != nil {
		return 0, err
	}
	cmd, err := QueryOutputCmd(index)
	if err != nil {
		return 0, err
	}
	reply, err := l.Do(cmd)
	if err != nil {
		return 0, err
	}
	return parseIntReply(reply.Value)
}

// Input reads a digital input (true = HIGH).
func (l *Link) Input(index int) (bool, error) {
	if err := l.checkChannel("input index", index, func(c Capabilities) int { return c.Inputs }); err != nil {
		return false, err
	}
	cmd, err := QueryInputCmd(index)
	if err != nil {
		return false, err
	}
	reply, err := l.Do(cmd)
	if err != nil {
		return false, err
	}
	return parseBoolReply(reply.Value)
}

// ADC reads an ADC channel voltage in volts.
func (l *Link) ADC(index int) (float64, error) {
	if err := l.checkChannel("adc index", index, func(c Capabilities) int { return c.ADCs }); err != nil {
		return 0, err
	}
	cmd, err := QueryADCCmd(index)
	if err != nil {
		return 0, err
	}
	reply, err := l.Do(cmd)
	if err != nil {
		return 0, err
	}
	return parseFloatReply(reply.Value)
}

// SetLED sets a button LED's brightness (0-100).
func (l *Link) SetLED(button string, brightness int) error {
	cmd, err := SetLEDCmd(button, brightness)
	if err != nil {
		return err
	}
	_, err = l.Do(cmd)
	return err
}

// Button reads a user button's momentary state (true = pressed).
func (l *Link) Button(button string) (bool, error) {
	cmd, err := QueryButtonCmd(button)
	if err != nil {
		return false, err
	}
	reply, err := l.Do(cmd)
	if err != nil {
		return false, err
	}
	return parseBoolReply(reply.Value)
}

// Status takes a full snapshot of the board state.
func (l *Link) Status() (DeviceStatus, error) {
	reply, err := l.Do(StatusCmd())
	if err != nil {
		return DeviceStatus{}, err
	}
	if reply.JSON == nil {
		return DeviceStatus{}, fmt.Errorf("%w: status reply was not JSON", ErrProtocol)
	}
	return ParseStatus(reply.JSON)
}

// Reset returns the board to its safe state (all relays and outputs off).
// Safe to repeat: resetting an already-reset board succeeds.
func (l *Link) Reset() error {
	_, err := l.Do(ResetCmd())
	return err
}

// =============================================================================
// Internals (callers hold l.mu)
// =============================================================================

// checkChannel validates a 1-based index against discovered capabilities.
func (l *Link) checkChannel(field string, index int, count func(Capabilities) int) error {
	l.mu.Lock()
	connected := l.state == StateConnected
	max := count(l.caps)
	l.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	if index < 1 || index > max {
		return &ValidationError{Field: field, Value: index, Reason: fmt.Sprintf("must be 1-%d", max)}
	}
	return nil
}

// roundTripLocked performs one command exchange. The input buffer is
// drained first so stale output (HELP trailer, boot banner) cannot be
// misread as this command's reply.
func (l *Link) roundTripLocked(cmd Command) (Reply, error) {
	if l.port == nil {
		return Reply{}, ErrNotConnected
	}

	_ = l.port.ResetInputBuffer()
	l.pending = l.pending[:0]

	if _, err := l.port.Write([]byte(cmd.Encode())); err != nil {
		err = fmt.Errorf("%w: writing %s: %v", ErrConnectionFailed, cmd.Verb, err)
		l.faultLocked(err)
		return Reply{}, err
	}

	deadline := time.Now().Add(l.cfg.CommandTimeout)
	for {
		line, err := l.readLineLocked(deadline)
		if err != nil {
			l.faultLocked(err)
			return Reply{}, err
		}

		line = strings.TrimSpace(line)
		if line == "" || !IsTerminal(line) {
			continue // banner, comment, or HELP body
		}

		return ParseReply(line)
	}
}

// readLineLocked returns the next newline-terminated line, accumulating
// partial reads until the deadline.
func (l *Link) readLineLocked(deadline time.Time) (string, error) {
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := string(l.pending[:i])
			l.pending = l.pending[i+1:]
			return strings.TrimRight(line, "\r"), nil
		}

		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("%w: no reply within %v", ErrTimeout, l.cfg.CommandTimeout)
		}

		buf := make([]byte, readChunkSize)
		n, err := l.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("%w: reading: %v", ErrConnectionFailed, err)
		}
		if n > 0 {
			l.pending = append(l.pending, buf[:n]...)
		}
	}
}

// faultLocked closes the port and records the fault with its retry window.
func (l *Link) faultLocked(err error) {
	l.closePortLocked()
	l.state = StateFaulted
	l.lastErr = err
	l.retryAt = time.Now().Add(l.cfg.ReconnectInterval)
	if l.logger != nil {
		l.logger.Warn("board link faulted",
			"port", l.portName,
			"error", err,
			"retry_in", l.cfg.ReconnectInterval,
		)
	}
}

// closePortLocked closes and clears the port if open.
func (l *Link) closePortLocked() {
	if l.port != nil {
		l.port.Close() //nolint:errcheck // Best effort on teardown
		l.port = nil
	}
	l.pending = nil
}
