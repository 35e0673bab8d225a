package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLivescoreStoreAppend(t *testing.T) {
	dir := t.TempDir()
	s := NewLivescoreStore(dir)

	if err := s.Append("fx-1", json.RawMessage(`{"seq":1}`)); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.Append("fx-1", json.RawMessage(`{"seq":2}`)); err != nil {
		t.Fatalf("second append: %v", err)
	}

	name := "fx-1_" + time.Now().Format("20060102") + ".json"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read livescore file: %v", err)
	}

	var batches []map[string]int
	if err := json.Unmarshal(data, &batches); err != nil {
		t.Fatalf("file is not a JSON list: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0]["seq"] != 1 || batches[1]["seq"] != 2 {
		t.Fatalf("batches out of order: %v", batches)
	}
}

func TestLivescoreStoreSeparateFixtures(t *testing.T) {
	dir := t.TempDir()
	s := NewLivescoreStore(dir)

	if err := s.Append("fx-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("append fx-1: %v", err)
	}
	if err := s.Append("fx-2", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("append fx-2: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected one file per fixture, got %d", len(entries))
	}
}

func TestLivescoreStoreRecoversCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewLivescoreStore(dir)

	name := "fx-1_" + time.Now().Format("20060102") + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	if err := s.Append("fx-1", json.RawMessage(`{"seq":1}`)); err != nil {
		t.Fatalf("append over corrupt file: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read livescore file: %v", err)
	}
	var batches []json.RawMessage
	if err := json.Unmarshal(data, &batches); err != nil {
		t.Fatalf("file is not a JSON list after recovery: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch after recovery, got %d", len(batches))
	}
}
