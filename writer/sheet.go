package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"matchflow/logger"
)

// ErrSinkUnavailable means the sink could not be reached or refused the row.
// The event is not retried within this pass; the durable queue upstream is
// the retry mechanism.
var ErrSinkUnavailable = errors.New("sink: append failed")

// RowSink appends one normalized row to a durable destination.
type RowSink interface {
	AppendRow(ctx context.Context, row []any) error
}

// SheetSink appends rows to a spreadsheet-backed REST service.
type SheetSink struct {
	baseURL string
	sheetID string
	tab     string
	client  *http.Client
	log     *logger.Log
}

type appendRowRequest struct {
	Tab    string `json:"tab,omitempty"`
	Values []any  `json:"values"`
}

func NewSheetSink(baseURL, sheetID, tab string, timeout time.Duration) *SheetSink {
	s := &SheetSink{
		baseURL: baseURL,
		sheetID: sheetID,
		tab:     tab,
		client:  &http.Client{Timeout: timeout},
		log:     logger.GetLogger(),
	}

	s.log.WithComponent("sheet_sink").WithFields(logger.Fields{
		"base_url": baseURL,
		"sheet_id": sheetID,
		"tab":      tab,
	}).Info("sheet sink initialized")

	return s
}

func (s *SheetSink) AppendRow(ctx context.Context, row []any) error {
	payload, err := json.Marshal(appendRowRequest{Tab: s.tab, Values: row})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}

	u := fmt.Sprintf("%s/sheets/%s/rows", s.baseURL, s.sheetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sink returned status %d", ErrSinkUnavailable, resp.StatusCode)
	}

	logger.IncrementSinkWrite(len(payload))
	return nil
}
