package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"matchflow/logger"
)

// LivescoreStore persists raw live-score batches verbatim, one JSON file per
// fixture per calendar day. Each arrival is appended to the file's list via
// read-modify-append so the file always holds a valid JSON array.
type LivescoreStore struct {
	dir string
	mu  sync.Mutex
	log *logger.Log
}

func NewLivescoreStore(dir string) *LivescoreStore {
	return &LivescoreStore{dir: dir, log: logger.GetLogger()}
}

// Append adds one raw batch payload to the fixture's file for today.
func (s *LivescoreStore) Append(fixtureID string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create livescore directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", fixtureID, time.Now().Format("20060102"))
	path := filepath.Join(s.dir, name)

	var batches []json.RawMessage
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &batches); err != nil {
			s.log.WithComponent("livescore_store").WithError(err).Warn("existing livescore file is not a list, starting fresh")
			batches = nil
		}
	}

	batches = append(batches, raw)
	data, err := json.MarshalIndent(batches, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal livescore batches: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write livescore file: %w", err)
	}

	s.log.WithComponent("livescore_store").WithFields(logger.Fields{
		"file":    path,
		"batches": len(batches),
	}).Info("appended livescore batch")
	return nil
}
