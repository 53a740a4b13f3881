package main

import (
	"context"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("AUTOBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("AUTOBRIDGE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("AUTOBRIDGE_CONFIG", "/etc/autobridge/config.yaml")
	if got := getConfigPath(); got != "/etc/autobridge/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestNilRecorderHelpers(t *testing.T) {
	if snapshotRecorder(nil) != nil {
		t.Error("snapshotRecorder(nil) returned a non-nil interface")
	}
	if metricsRecorder(nil) != nil {
		t.Error("metricsRecorder(nil) returned a non-nil interface")
	}
}
