package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := t.TempDir() + "/orderly.log"
	log := Logger()
	if err := log.Configure("debug", "text", path, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.WithComponent("test").Info("hello file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("log line not written: %q", data)
	}
}

func TestLogDataFlowEntry(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.JSONFormatter{})

	LogDataFlowEntry(log.WithComponent("aggregator"), "aggregator", "distributor", 20, "merged_book")

	out := buf.String()
	for _, want := range []string{`"source":"aggregator"`, `"destination":"distributor"`, `"record_count":20`, `"flow_type":"data_flow"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestWarnCountsPerComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(&bytes.Buffer{})

	before := snapshot(&warnsByComponent)["counting"]
	log.WithComponent("counting").Warn("first")
	log.WithComponent("counting").Warn("second")
	if got := snapshot(&warnsByComponent)["counting"]; got != before+2 {
		t.Fatalf("warn count = %d, want %d", got, before+2)
	}
}

func TestCountersIncrement(t *testing.T) {
	before := Counters()
	IncrementTickRead()
	IncrementReconnect()
	AddSnapshotsDropped(3)
	after := Counters()
	if after["ticks_read"] != before["ticks_read"]+1 {
		t.Errorf("ticks_read not incremented: %v", after)
	}
	if after["reconnects"] != before["reconnects"]+1 {
		t.Errorf("reconnects not incremented: %v", after)
	}
	if after["snapshots_dropped"] != before["snapshots_dropped"]+3 {
		t.Errorf("snapshots_dropped not incremented: %v", after)
	}
}

func TestCallerHookSkipsWrappers(t *testing.T) {
	hook := newCallerHook("github.com/sirupsen/logrus", "orderly/logger.")
	if !hook.skipped("orderly/logger.(*Entry).Warn") || !hook.skipped("github.com/sirupsen/logrus.(*Entry).Log") {
		t.Fatalf("wrapper frames not skipped")
	}
	if hook.skipped("orderly/internal/orchestrator.(*Orchestrator).runConnector") {
		t.Fatalf("component frame skipped")
	}

	entry := logrus.NewEntry(logrus.New())
	if err := newCallerHook("github.com/sirupsen/logrus").Fire(entry); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if entry.Caller == nil || !strings.HasSuffix(entry.Caller.File, "logger_test.go") {
		t.Fatalf("caller = %+v, want the first frame outside logrus", entry.Caller)
	}
}
