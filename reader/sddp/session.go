package sddp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State of the feed connection. A session moves strictly forward through
// these states; any terminal failure discards the session and a fresh one is
// created on the next connection attempt.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuth
	StateSubscribed
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// FrameLog receives every inbound frame before any interpretation. Raw
// provider data outlives parsing bugs, so the append happens first.
type FrameLog interface {
	Append(ts time.Time, frame json.RawMessage) error
}

// session holds the state of one connection attempt. It is owned exclusively
// by the client's read loop and replaced wholesale on reconnect.
type session struct {
	state       State
	fixtureUUID string
	feeds       []string
	frameLog    FrameLog
	framesRead  int64
	startedAt   time.Time
}

func newSession(fixtureUUID string, feeds []string, frameLog FrameLog) *session {
	return &session{
		state:       StateConnecting,
		fixtureUUID: fixtureUUID,
		feeds:       feeds,
		frameLog:    frameLog,
		startedAt:   time.Now().UTC(),
	}
}

// FileFrameLog appends frames as JSON lines to one file per session.
type FileFrameLog struct {
	mu   sync.Mutex
	file *os.File
}

type frameLogEntry struct {
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

// NewFileFrameLog opens a session log file under dir, named after the fixture
// and the session start time.
func NewFileFrameLog(dir, fixtureUUID string) (*FileFrameLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create frame log directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.jsonl", fixtureUUID, time.Now().UTC().Format("20060102T150405"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame log: %w", err)
	}
	return &FileFrameLog{file: file}, nil
}

func (l *FileFrameLog) Append(ts time.Time, frame json.RawMessage) error {
	entry := frameLogEntry{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Message:   frame,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal frame log entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to append frame log entry: %w", err)
	}
	return nil
}

func (l *FileFrameLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// MemoryFrameLog buffers frames in memory. Used in tests and as a fallback
// when no log directory is configured.
type MemoryFrameLog struct {
	mu     sync.Mutex
	frames []json.RawMessage
}

func (l *MemoryFrameLog) Append(ts time.Time, frame json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, append(json.RawMessage(nil), frame...))
	return nil
}

func (l *MemoryFrameLog) Frames() []json.RawMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]json.RawMessage, len(l.frames))
	copy(out, l.frames)
	return out
}
