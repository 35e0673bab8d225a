package sddp

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileFrameLogAppend(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileFrameLog(dir, "fx-1")
	if err != nil {
		t.Fatalf("open frame log: %v", err)
	}
	defer l.Close()

	ts := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	if err := l.Append(ts, json.RawMessage(`{"outlet":{"msg":"is_authorised"}}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(ts, json.RawMessage(`{"content":{}}`)); err != nil {
		t.Fatalf("second append: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one session file, got %d", len(entries))
	}

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("open session file: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry frameLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line %d is not a frame entry: %v", lines, err)
		}
		if entry.Timestamp == "" || len(entry.Message) == 0 {
			t.Fatalf("incomplete entry: %+v", entry)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 entries, got %d", lines)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateAwaitingAuth: "awaiting_auth",
		StateSubscribed:   "subscribed",
		StateStreaming:    "streaming",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("state %d: expected %s, got %s", state, want, got)
		}
	}
}
