package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Feed names delivered by the provider. The matchEvent feed is the
// authoritative one; liveScore is faster but less detailed and must never
// trigger media generation.
const (
	FeedMatchEvent = "matchEvent"
	FeedLiveScore  = "liveScore"
)

// Provider event type ids.
const (
	GoalEventTypeID = 16
	CardEventTypeID = 17
)

// Provider qualifier ids recognized by the card dispatch table.
const (
	YellowCardQualifierID = 31
	RedCardQualifierID    = 33
)

// UnknownName substitutes any reference lookup that misses or fails.
const UnknownName = "Unknown"

// Qualifier is one provider-defined attribute attached to an event.
// A QualifierID of zero means the provider sent no id; Value may carry the
// literal sentinel "NULL" when the provider has no value for it.
type Qualifier struct {
	QualifierID int    `json:"qualifierId"`
	Value       string `json:"value"`
}

// RawEvent is one atomic occurrence from the feed. It is immutable once
// received and owned exclusively by the processing call handling it.
type RawEvent struct {
	ID           int64       `json:"id"`
	TypeID       int         `json:"typeId"`
	ContestantID string      `json:"contestantId"`
	PlayerID     string      `json:"playerId"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	PeriodID     int         `json:"periodId"`
	TimeMin      int         `json:"timeMin"`
	TimeSec      int         `json:"timeSec"`
	TimeStamp    string      `json:"timeStamp"`
	Qualifiers   []Qualifier `json:"qualifier"`
}

// EventList accepts both shapes the feed delivers: a JSON array of events or
// a single event object, which is normalized into a one-element list.
type EventList []RawEvent

func (l *EventList) UnmarshalJSON(data []byte) error {
	var many []RawEvent
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one RawEvent
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("event is neither an object nor a list: %w", err)
	}
	*l = EventList{one}
	return nil
}

// MatchDetails is the payload embedded in a content frame.
type MatchDetails struct {
	FixtureID string    `json:"id"`
	FeedName  string    `json:"feedName"`
	Events    EventList `json:"event"`
}

// MatchBatch is one feed message handed from the feed client to the work
// queue. Raw preserves the provider payload verbatim for archival; MessageID
// carries the queue delivery id used for acknowledgement.
type MatchBatch struct {
	FixtureID  string          `json:"fixtureId"`
	FeedName   string          `json:"feedName"`
	Events     []RawEvent      `json:"events"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`

	MessageID string `json:"-"`
}

// NewMatchBatch builds a batch from decoded match details plus the raw
// provider payload.
func NewMatchBatch(md MatchDetails, raw json.RawMessage, receivedAt time.Time) MatchBatch {
	return MatchBatch{
		FixtureID:  md.FixtureID,
		FeedName:   md.FeedName,
		Events:     []RawEvent(md.Events),
		Raw:        raw,
		ReceivedAt: receivedAt,
	}
}

// EnrichedRecord is the output of enrichment for one raw event. It is always
// fully populated for a well-formed event; reference fields that could not be
// resolved carry the "Unknown" placeholder.
type EnrichedRecord struct {
	EventID          int64
	FixtureID        string
	FeedName         string
	TypeID           int
	EventTypeName    string
	TeamName         string
	PlayerName       string
	PlayerPhotoURL   string
	TeamGoalTemplate string
	QualifierSummary string
	PeriodID         int
	TimeMin          int
	TimeSec          int
	TimeStamp        string
	X                float64
	Y                float64
}

// Row renders the record in the fixed column order the sink expects:
// timestamp, player, team, event type, qualifier summary, provider event id,
// fixture id, feed name, period, minute, second, x, y.
func (r EnrichedRecord) Row() []any {
	return []any{
		r.TimeStamp,
		r.PlayerName,
		r.TeamName,
		r.EventTypeName,
		r.QualifierSummary,
		r.EventID,
		r.FixtureID,
		r.FeedName,
		r.PeriodID,
		r.TimeMin,
		r.TimeSec,
		r.X,
		r.Y,
	}
}
