package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/dwrandle/automation-bridge/internal/board"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/logging"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/mqtt"
)

type published struct {
	topic    string
	payload  string
	retained bool
}

// fakeClient records publishes and subscriptions without a broker.
type fakeClient struct {
	topics       mqtt.Topics
	published    []published
	handlers     map[string]mqtt.MessageHandler
	subscribeErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		topics:   mqtt.NewTopics("automation"),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakeClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.published = append(f.published, published{topic, string(payload), retained})
	return nil
}

func (f *fakeClient) PublishString(topic, payload string, qos byte, retained bool) error {
	return f.Publish(topic, []byte(payload), qos, retained)
}

func (f *fakeClient) PublishRetained(topic string, payload []byte) error {
	return f.Publish(topic, payload, 1, true)
}

func (f *fakeClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeClient) Topics() mqtt.Topics { return f.topics }
func (f *fakeClient) IsConnected() bool   { return true }

// fakeController records board calls.
type fakeController struct {
	relayCalls  []string
	outputCalls []string
	resets      int
	failWith    error
}

func (f *fakeController) SetRelay(index int, on bool) error {
	if f.failWith != nil {
		return f.failWith
	}
	state := "OFF"
	if on {
		state = "ON"
	}
	f.relayCalls = append(f.relayCalls, fmt.Sprintf("%d %s", index, state))
	return nil
}

func (f *fakeController) SetOutput(index, value int) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.outputCalls = append(f.outputCalls, fmt.Sprintf("%d %d", index, value))
	return nil
}

func (f *fakeController) Reset() error {
	if f.failWith != nil {
		return f.failWith
	}
	f.resets++
	return nil
}

func (f *fakeController) Capabilities() board.Capabilities {
	return board.Capabilities{Relays: 3, Outputs: 3, Inputs: 4, ADCs: 3}
}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func startedBridge(t *testing.T) (*Bridge, *fakeClient, *fakeController) {
	t.Helper()
	client := newFakeClient()
	ctrl := &fakeController{}
	b := New(client, ctrl, testLogger(), 1)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return b, client, ctrl
}

func TestStartSubscribes(t *testing.T) {
	_, client, _ := startedBridge(t)

	for _, topic := range []string{"automation/relay/+", "automation/output/+", "automation/command"} {
		if _, ok := client.handlers[topic]; !ok {
			t.Errorf("missing subscription for %s", topic)
		}
	}
}

func TestStartPropagatesSubscribeFailure(t *testing.T) {
	client := newFakeClient()
	client.subscribeErr = errors.New("broker gone")

	b := New(client, &fakeController{}, testLogger(), 1)
	if err := b.Start(); err == nil {
		t.Fatal("Start() succeeded despite subscribe failure")
	}
}

func TestRelayCommands(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    []string // controller calls, nil means dropped
	}{
		{"on", "automation/relay/1", "ON", []string{"1 ON"}},
		{"off", "automation/relay/2", "OFF", []string{"2 OFF"}},
		{"numeric true", "automation/relay/3", "1", []string{"3 ON"}},
		{"boolean false", "automation/relay/1", "false", []string{"1 OFF"}},
		{"lowercase", "automation/relay/1", "on", []string{"1 ON"}},
		// The fold is total: anything outside ON/1/TRUE switches off.
		{"unrecognised folds off", "automation/relay/1", "SIDEWAYS", []string{"1 OFF"}},
		{"empty folds off", "automation/relay/2", "", []string{"2 OFF"}},
		{"index zero", "automation/relay/0", "ON", nil},
		{"index above range", "automation/relay/4", "ON", nil},
		{"index not numeric", "automation/relay/x", "ON", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client, ctrl := startedBridge(t)

			handler := client.handlers["automation/relay/+"]
			if err := handler(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("handler error: %v", err)
			}

			if len(ctrl.relayCalls) != len(tt.want) {
				t.Fatalf("relay calls = %v, want %v", ctrl.relayCalls, tt.want)
			}
			for i := range tt.want {
				if ctrl.relayCalls[i] != tt.want[i] {
					t.Errorf("call[%d] = %q, want %q", i, ctrl.relayCalls[i], tt.want[i])
				}
			}
		})
	}
}

func TestOutputCommands(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    []string
	}{
		{"percentage", "automation/output/2", "55", []string{"2 55"}},
		{"zero", "automation/output/1", "0", []string{"1 0"}},
		{"full", "automation/output/3", "100", []string{"3 100"}},
		{"on means full", "automation/output/1", "ON", []string{"1 100"}},
		{"off means zero", "automation/output/1", "OFF", []string{"1 0"}},
		{"float rounds", "automation/output/1", "54.6", []string{"1 55"}},
		{"clamped high", "automation/output/1", "101", []string{"1 100"}},
		{"clamped low", "automation/output/1", "-1", []string{"1 0"}},
		{"index above range", "automation/output/4", "50", nil},
		{"garbage", "automation/output/1", "LOUD", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client, ctrl := startedBridge(t)

			handler := client.handlers["automation/output/+"]
			if err := handler(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("handler error: %v", err)
			}

			if len(ctrl.outputCalls) != len(tt.want) {
				t.Fatalf("output calls = %v, want %v", ctrl.outputCalls, tt.want)
			}
			for i := range tt.want {
				if ctrl.outputCalls[i] != tt.want[i] {
					t.Errorf("call[%d] = %q, want %q", i, ctrl.outputCalls[i], tt.want[i])
				}
			}
		})
	}
}

func TestBoardCommands(t *testing.T) {
	b, client, ctrl := startedBridge(t)
	handler := client.handlers["automation/command"]

	if err := handler("automation/command", []byte("RESET")); err != nil {
		t.Fatalf("RESET handler error: %v", err)
	}
	if ctrl.resets != 1 {
		t.Errorf("resets = %d, want 1", ctrl.resets)
	}
	select {
	case <-b.Refresh():
	default:
		t.Error("RESET did not request a refresh")
	}

	if err := handler("automation/command", []byte("status")); err != nil {
		t.Fatalf("STATUS handler error: %v", err)
	}
	select {
	case <-b.Refresh():
	default:
		t.Error("STATUS did not request a refresh")
	}

	if err := handler("automation/command", []byte("DANCE")); err != nil {
		t.Fatalf("unknown command handler error: %v", err)
	}
	if ctrl.resets != 1 {
		t.Errorf("unknown command triggered a reset")
	}
}

func TestRefreshSignalCoalesces(t *testing.T) {
	b, client, _ := startedBridge(t)
	handler := client.handlers["automation/command"]

	for i := 0; i < 3; i++ {
		if err := handler("automation/command", []byte("STATUS")); err != nil {
			t.Fatalf("handler error: %v", err)
		}
	}

	count := 0
	for {
		select {
		case <-b.Refresh():
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("got %d refresh signals, want 1 coalesced", count)
	}
}

func TestAppliedCommandRequestsRefresh(t *testing.T) {
	b, client, _ := startedBridge(t)

	if err := client.handlers["automation/relay/+"]("automation/relay/1", []byte("ON")); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	select {
	case <-b.Refresh():
	default:
		t.Error("applied relay command did not request a refresh")
	}

	if err := client.handlers["automation/output/+"]("automation/output/2", []byte("40")); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	select {
	case <-b.Refresh():
	default:
		t.Error("applied output command did not request a refresh")
	}

	// A dropped message must not trigger a poll.
	if err := client.handlers["automation/output/+"]("automation/output/1", []byte("LOUD")); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	select {
	case <-b.Refresh():
		t.Error("dropped message requested a refresh")
	default:
	}
}

func TestControllerFailureReturnsError(t *testing.T) {
	_, client, ctrl := startedBridge(t)
	ctrl.failWith = errors.New("board faulted")

	handler := client.handlers["automation/relay/+"]
	if err := handler("automation/relay/1", []byte("ON")); err == nil {
		t.Error("handler swallowed a board failure")
	}
}

// fakeCommandRecorder records command outcomes.
type fakeCommandRecorder struct {
	records []string // "source verb args ok"
}

func (f *fakeCommandRecorder) RecordCommand(_ context.Context, source, verb, args string, ok bool, _ string) {
	f.records = append(f.records, fmt.Sprintf("%s %s %s %t", source, verb, args, ok))
}

func TestCommandsReachRecorder(t *testing.T) {
	client := newFakeClient()
	rec := &fakeCommandRecorder{}

	b := New(client, &fakeController{}, testLogger(), 1)
	b.SetRecorder(rec)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := client.handlers["automation/relay/+"]("automation/relay/1", []byte("ON")); err != nil {
		t.Fatalf("relay handler error: %v", err)
	}
	if err := client.handlers["automation/output/+"]("automation/output/2", []byte("40")); err != nil {
		t.Fatalf("output handler error: %v", err)
	}
	if err := client.handlers["automation/command"]("automation/command", []byte("RESET")); err != nil {
		t.Fatalf("command handler error: %v", err)
	}
	// Dropped messages never become command records.
	if err := client.handlers["automation/relay/+"]("automation/relay/99", []byte("ON")); err != nil {
		t.Fatalf("relay handler error: %v", err)
	}

	want := []string{
		"mqtt RELAY 1 ON true",
		"mqtt OUTPUT 2 40 true",
		"mqtt RESET  true",
	}
	if len(rec.records) != len(want) {
		t.Fatalf("records = %v, want %v", rec.records, want)
	}
	for i := range want {
		if rec.records[i] != want[i] {
			t.Errorf("record[%d] = %q, want %q", i, rec.records[i], want[i])
		}
	}
}

func TestFailedCommandRecordedAsFailure(t *testing.T) {
	client := newFakeClient()
	ctrl := &fakeController{failWith: errors.New("board faulted")}
	rec := &fakeCommandRecorder{}

	b := New(client, ctrl, testLogger(), 1)
	b.SetRecorder(rec)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := client.handlers["automation/relay/+"]("automation/relay/1", []byte("ON")); err == nil {
		t.Fatal("handler swallowed a board failure")
	}
	if len(rec.records) != 1 || rec.records[0] != "mqtt RELAY 1 ON false" {
		t.Errorf("records = %v, want failure record", rec.records)
	}
}

func TestPublishStatus(t *testing.T) {
	b, client, _ := startedBridge(t)

	status := board.DeviceStatus{
		Relays:  []bool{true, false, false},
		Outputs: []int{55, 0, 0},
		Inputs:  []bool{false, false, false, false},
		ADCs:    []float64{3.301, 0, 0},
	}
	if err := b.PublishStatus(status, "1.2.0"); err != nil {
		t.Fatalf("PublishStatus() error: %v", err)
	}

	if len(client.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.published))
	}
	msg := client.published[0]
	if msg.topic != "automation/status" {
		t.Errorf("topic = %q", msg.topic)
	}
	if !msg.retained {
		t.Error("status message not retained")
	}

	var decoded StatusPayload
	if err := json.Unmarshal([]byte(msg.payload), &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if !decoded.Relays[0] || decoded.Outputs[0] != 55 || decoded.Firmware != "1.2.0" {
		t.Errorf("decoded payload mismatch: %+v", decoded)
	}
	if decoded.Timestamp.IsZero() {
		t.Error("payload has no timestamp")
	}
}

func TestPublishInputChange(t *testing.T) {
	b, client, _ := startedBridge(t)

	if err := b.PublishInputChange(3, true); err != nil {
		t.Fatalf("PublishInputChange() error: %v", err)
	}
	if err := b.PublishInputChange(1, false); err != nil {
		t.Fatalf("PublishInputChange() error: %v", err)
	}

	if len(client.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(client.published))
	}
	if client.published[0].topic != "automation/input/3" || client.published[0].payload != "HIGH" {
		t.Errorf("first publish = %+v", client.published[0])
	}
	if client.published[1].topic != "automation/input/1" || client.published[1].payload != "LOW" {
		t.Errorf("second publish = %+v", client.published[1])
	}
	if client.published[0].retained {
		t.Error("input events must not be retained")
	}
}

func TestParseChannelIndex(t *testing.T) {
	tests := []struct {
		topic   string
		want    int
		wantErr bool
	}{
		{"automation/relay/1", 1, false},
		{"automation/relay/12", 12, false},
		{"automation/relay/0", 0, true},
		{"automation/relay/-2", 0, true},
		{"automation/relay/abc", 0, true},
		{"automation/relay/", 0, true},
		{"norelay", 0, true},
	}

	for _, tt := range tests {
		got, err := parseChannelIndex(tt.topic)
		if tt.wantErr {
			if !errors.Is(err, ErrBadTopic) {
				t.Errorf("parseChannelIndex(%q): expected ErrBadTopic, got %v", tt.topic, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseChannelIndex(%q): unexpected error %v", tt.topic, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseChannelIndex(%q) = %d, want %d", tt.topic, got, tt.want)
		}
	}
}
