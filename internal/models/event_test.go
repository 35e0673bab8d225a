package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventListUnmarshalList(t *testing.T) {
	raw := []byte(`[{"id":1,"typeId":16},{"id":2,"typeId":17}]`)

	var events EventList
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != 1 || events[1].TypeID != 17 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestEventListUnmarshalSingleObject(t *testing.T) {
	raw := []byte(`{"id":7,"typeId":16,"playerId":"p1"}`)

	var events EventList
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID != 7 || events[0].PlayerID != "p1" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestEventListUnmarshalGarbage(t *testing.T) {
	var events EventList
	if err := json.Unmarshal([]byte(`"nope"`), &events); err == nil {
		t.Fatal("expected error for non-event payload")
	}
}

func TestMatchDetailsDecode(t *testing.T) {
	raw := []byte(`{"id":"fx-1","feedName":"matchEvent","event":{"id":3,"typeId":16,"qualifier":[{"qualifierId":31,"value":"NULL"}]}}`)

	var md MatchDetails
	if err := json.Unmarshal(raw, &md); err != nil {
		t.Fatalf("unmarshal match details: %v", err)
	}
	if md.FixtureID != "fx-1" || md.FeedName != FeedMatchEvent {
		t.Fatalf("unexpected match details: %+v", md)
	}
	if len(md.Events) != 1 || len(md.Events[0].Qualifiers) != 1 {
		t.Fatalf("unexpected events: %+v", md.Events)
	}
	if md.Events[0].Qualifiers[0].QualifierID != YellowCardQualifierID {
		t.Fatalf("unexpected qualifier: %+v", md.Events[0].Qualifiers[0])
	}
}

func TestNewMatchBatch(t *testing.T) {
	md := MatchDetails{
		FixtureID: "fx-1",
		FeedName:  FeedLiveScore,
		Events:    EventList{{ID: 1, TypeID: 16}},
	}
	raw := json.RawMessage(`{"liveData":{}}`)
	now := time.Now().UTC()

	batch := NewMatchBatch(md, raw, now)
	if batch.FixtureID != "fx-1" || batch.FeedName != FeedLiveScore {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if len(batch.Events) != 1 || batch.Events[0].ID != 1 {
		t.Fatalf("unexpected batch events: %+v", batch.Events)
	}
	if string(batch.Raw) != string(raw) {
		t.Fatalf("raw payload not preserved: %s", batch.Raw)
	}
	if !batch.ReceivedAt.Equal(now) {
		t.Fatalf("unexpected receive time: %v", batch.ReceivedAt)
	}
}

func TestEnrichedRecordRowOrder(t *testing.T) {
	rec := EnrichedRecord{
		EventID:          42,
		FixtureID:        "fx-1",
		FeedName:         FeedMatchEvent,
		EventTypeName:    "Goal",
		TeamName:         "Team A",
		PlayerName:       "Player B",
		QualifierSummary: "Foul (NULL)",
		PeriodID:         2,
		TimeMin:          67,
		TimeSec:          12,
		TimeStamp:        "2026-08-31T12:00:00Z",
		X:                88.5,
		Y:                41.2,
	}

	row := rec.Row()
	if len(row) != 13 {
		t.Fatalf("expected 13 columns, got %d", len(row))
	}
	if row[0] != "2026-08-31T12:00:00Z" || row[1] != "Player B" || row[2] != "Team A" {
		t.Fatalf("unexpected leading columns: %v", row[:3])
	}
	if row[3] != "Goal" || row[4] != "Foul (NULL)" || row[5] != int64(42) {
		t.Fatalf("unexpected middle columns: %v", row[3:6])
	}
	if row[12] != 41.2 {
		t.Fatalf("unexpected trailing column: %v", row[12])
	}
}
