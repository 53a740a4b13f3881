package board

import (
	"errors"
	"testing"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"OK", true},
		{"OK PONG", true},
		{"ERR unknown command", true},
		{`{"relays":[false]}`, true},
		{"# Automation Bridge v1.2.0", false},
		{"  RELAY <n> <ON|OFF>", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.line); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantValue string
		wantJSON  bool
		wantCmd   bool // device-side CommandError
		wantProto bool // ErrProtocol
	}{
		{name: "bare ok", line: "OK"},
		{name: "ok with value", line: "OK PONG", wantValue: "PONG"},
		{name: "ok with float", line: "OK 3.301", wantValue: "3.301"},
		{name: "json status", line: `{"relays":[true]}`, wantJSON: true},
		{name: "device error", line: "ERR invalid channel", wantCmd: true},
		{name: "bare err", line: "ERR", wantCmd: true},
		{name: "garbage", line: "WAT", wantProto: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := ParseReply(tt.line)

			if tt.wantCmd {
				var cmdErr *CommandError
				if !errors.As(err, &cmdErr) {
					t.Fatalf("expected CommandError, got %v", err)
				}
				return
			}
			if tt.wantProto {
				if !errors.Is(err, ErrProtocol) {
					t.Fatalf("expected ErrProtocol, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reply.Value != tt.wantValue {
				t.Errorf("Value = %q, want %q", reply.Value, tt.wantValue)
			}
			if tt.wantJSON && reply.JSON == nil {
				t.Error("expected JSON payload, got none")
			}
		})
	}
}

func TestParseReplyErrMessageVerbatim(t *testing.T) {
	_, err := ParseReply("ERR value out of range")

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.Message != "value out of range" {
		t.Errorf("Message = %q, want %q", cmdErr.Message, "value out of range")
	}
}

func TestParseBoolReply(t *testing.T) {
	tests := []struct {
		value   string
		want    bool
		wantErr bool
	}{
		{"ON", true, false},
		{"OFF", false, false},
		{"HIGH", true, false},
		{"LOW", false, false},
		{"PRESSED", true, false},
		{"RELEASED", false, false},
		{"on", true, false},
		{"1", true, false},
		{"0", false, false},
		{"MAYBE", false, true},
	}

	for _, tt := range tests {
		got, err := parseBoolReply(tt.value)
		if tt.wantErr {
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("parseBoolReply(%q): expected ErrProtocol, got %v", tt.value, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseBoolReply(%q): unexpected error %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseBoolReply(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseIntReply(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"55", 55, false},
		{"55.0", 55, false},
		{"99.6", 100, false},
		{"0", 0, false},
		{"volts", 0, true},
	}

	for _, tt := range tests {
		got, err := parseIntReply(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseIntReply(%q): expected error", tt.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseIntReply(%q): unexpected error %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseIntReply(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseFloatReply(t *testing.T) {
	got, err := parseFloatReply("3.301")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3.301 {
		t.Errorf("parseFloatReply(3.301) = %v", got)
	}

	if _, err := parseFloatReply("n/a"); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}
