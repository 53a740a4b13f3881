package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dwrandle/automation-bridge/internal/board"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/mqtt"
)

// Publisher is the MQTT surface the bridge needs.
// Satisfied by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishString(topic, payload string, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Topics() mqtt.Topics
	IsConnected() bool
}

// BoardController is the board surface the bridge needs.
// Satisfied by board.Link.
type BoardController interface {
	SetRelay(index int, on bool) error
	SetOutput(index, value int) error
	Reset() error
	Capabilities() board.Capabilities
}

// CommandRecorder persists command outcomes. Satisfied by history.Store.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, source, verb, args string, ok bool, detail string)
}

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatusPayload is the JSON document published on the status topic.
type StatusPayload struct {
	board.DeviceStatus
	Timestamp time.Time `json:"timestamp"`
	Firmware  string    `json:"firmware,omitempty"`
}

// Bridge wires MQTT command topics to the board and board state to
// MQTT status topics.
type Bridge struct {
	client   Publisher
	ctrl     BoardController
	logger   Logger
	qos      byte
	refresh  chan struct{}
	recorder CommandRecorder
}

// New creates a Bridge. Subscriptions are not registered until Start.
func New(client Publisher, ctrl BoardController, logger Logger, qos byte) *Bridge {
	return &Bridge{
		client:  client,
		ctrl:    ctrl,
		logger:  logger,
		qos:     qos,
		refresh: make(chan struct{}, 1),
	}
}

// SetRecorder wires a command history recorder. Call before Start;
// applied and failed commands are recorded with source "mqtt".
func (b *Bridge) SetRecorder(r CommandRecorder) {
	b.recorder = r
}

// Start registers the inbound subscriptions: relay and output command
// topics plus the board-level command topic. Call after the MQTT client
// has connected; the client restores subscriptions across reconnects.
func (b *Bridge) Start() error {
	topics := b.client.Topics()

	if err := b.client.Subscribe(topics.AllRelays(), b.qos, b.handleRelay); err != nil {
		return fmt.Errorf("subscribing to relay commands: %w", err)
	}
	if err := b.client.Subscribe(topics.AllOutputs(), b.qos, b.handleOutput); err != nil {
		return fmt.Errorf("subscribing to output commands: %w", err)
	}
	if err := b.client.Subscribe(topics.Command(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to board commands: %w", err)
	}

	b.logger.Info("mqtt bridge started",
		"relay_topic", topics.AllRelays(),
		"output_topic", topics.AllOutputs(),
		"command_topic", topics.Command(),
	)
	return nil
}

// Refresh delivers a signal whenever an applied command or a STATUS
// request wants an immediate snapshot publish. The channel has capacity
// 1; coalesced requests are fine since one snapshot answers them all.
func (b *Bridge) Refresh() <-chan struct{} {
	return b.refresh
}

// PublishStatus publishes a retained snapshot on the status topic.
func (b *Bridge) PublishStatus(status board.DeviceStatus, firmware string) error {
	payload, err := json.Marshal(StatusPayload{
		DeviceStatus: status,
		Timestamp:    time.Now().UTC(),
		Firmware:     firmware,
	})
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	return b.client.PublishRetained(b.client.Topics().Status(), payload)
}

// PublishInputChange announces a digital input edge as HIGH or LOW.
// Index is 1-based.
func (b *Bridge) PublishInputChange(index int, high bool) error {
	level := "LOW"
	if high {
		level = "HIGH"
	}
	return b.client.PublishString(b.client.Topics().Input(index), level, b.qos, false)
}

// =============================================================================
// Inbound handlers
// =============================================================================

// handleRelay processes {prefix}/relay/{n} command messages.
func (b *Bridge) handleRelay(topic string, payload []byte) error {
	index, err := parseChannelIndex(topic)
	if err != nil {
		b.drop(topic, payload, err)
		return nil
	}
	if max := b.ctrl.Capabilities().Relays; index > max {
		b.drop(topic, payload, fmt.Errorf("%w: relay %d of %d", ErrBadTopic, index, max))
		return nil
	}

	on := parseSwitchPayload(payload)
	state := "OFF"
	if on {
		state = "ON"
	}

	err = b.ctrl.SetRelay(index, on)
	b.record("RELAY", fmt.Sprintf("%d %s", index, state), err)
	if err != nil {
		b.logger.Error("relay command failed", "topic", topic, "index", index, "on", on, "error", err)
		return err
	}
	b.logger.Debug("relay command applied", "index", index, "on", on)
	b.requestRefresh()
	return nil
}

// handleOutput processes {prefix}/output/{n} command messages.
func (b *Bridge) handleOutput(topic string, payload []byte) error {
	index, err := parseChannelIndex(topic)
	if err != nil {
		b.drop(topic, payload, err)
		return nil
	}
	if max := b.ctrl.Capabilities().Outputs; index > max {
		b.drop(topic, payload, fmt.Errorf("%w: output %d of %d", ErrBadTopic, index, max))
		return nil
	}

	value, err := parseLevelPayload(payload)
	if err != nil {
		b.drop(topic, payload, err)
		return nil
	}

	err = b.ctrl.SetOutput(index, value)
	b.record("OUTPUT", fmt.Sprintf("%d %d", index, value), err)
	if err != nil {
		b.logger.Error("output command failed", "topic", topic, "index", index, "value", value, "error", err)
		return err
	}
	b.logger.Debug("output command applied", "index", index, "value", value)
	b.requestRefresh()
	return nil
}

// handleCommand processes board-level RESET and STATUS commands.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "RESET":
		err := b.ctrl.Reset()
		b.record("RESET", "", err)
		if err != nil {
			b.logger.Error("reset command failed", "error", err)
			return err
		}
		b.logger.Info("board reset via mqtt")
		b.requestRefresh()
		return nil

	case "STATUS":
		b.requestRefresh()
		return nil

	default:
		b.drop(topic, payload, fmt.Errorf("%w: unknown command", ErrBadPayload))
		return nil
	}
}

// requestRefresh nudges the poller without blocking; a pending signal
// already covers this request.
func (b *Bridge) requestRefresh() {
	select {
	case b.refresh <- struct{}{}:
	default:
	}
}

// record persists a command outcome when a recorder is wired. Dropped
// messages never reach it: only commands that went to the board count.
func (b *Bridge) record(verb, args string, err error) {
	if b.recorder == nil {
		return
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	b.recorder.RecordCommand(context.Background(), "mqtt", verb, args, err == nil, detail)
}

// drop logs a rejected message. Handler errors are not returned for
// validation failures: a retry would fail identically.
func (b *Bridge) drop(topic string, payload []byte, err error) {
	b.logger.Warn("dropping mqtt message",
		"topic", topic,
		"payload", truncate(string(payload), 64),
		"error", err,
	)
}

// =============================================================================
// Parsing
// =============================================================================

// parseChannelIndex extracts the trailing 1-based channel index from a
// command topic like "automation/relay/2".
func parseChannelIndex(topic string) (int, error) {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 || i == len(topic)-1 {
		return 0, fmt.Errorf("%w: %q has no channel segment", ErrBadTopic, topic)
	}
	index, err := strconv.Atoi(topic[i+1:])
	if err != nil || index < 1 {
		return 0, fmt.Errorf("%w: %q needs a positive channel index", ErrBadTopic, topic)
	}
	return index, nil
}

// parseSwitchPayload folds a relay payload into a bool: ON/1/TRUE
// (case-insensitive) switch on, anything else switches off. The fold is
// total, so no relay payload counts as malformed.
func parseSwitchPayload(payload []byte) bool {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "ON", "1", "TRUE":
		return true
	default:
		return false
	}
}

// parseLevelPayload folds an output payload into a percentage.
// ON/TRUE mean full, OFF/FALSE mean zero, otherwise a number clamped
// to 0-100. Clamping beats rejecting here: a dimmer sending 100.4
// wants full, not a dropped message.
func parseLevelPayload(payload []byte) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(string(payload)))
	switch s {
	case "ON", "TRUE":
		return 100, nil
	case "OFF", "FALSE":
		return 0, nil
	}

	value, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("%w: %q is not a level", ErrBadPayload, payload)
		}
		value = int(f + 0.5)
	}
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value, nil
}

// truncate bounds payload echoes in log lines.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
