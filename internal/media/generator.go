package media

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"matchflow/logger"
)

// Job kinds understood by the rendering workers.
const (
	KindGoal = "goal"
	KindCard = "card"
)

// Job is a typed rendering request. Rendering happens asynchronously in an
// external worker; the pipeline never waits on or examines the result.
type Job struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	CardColor      string          `json:"cardColor,omitempty"`
	PlayerName     string          `json:"playerName"`
	PlayerPhotoURL string          `json:"playerPhotoUrl,omitempty"`
	GoalTemplate   string          `json:"teamGoalTemplateUrl,omitempty"`
	FixtureID      string          `json:"fixtureId,omitempty"`
	Scores         json.RawMessage `json:"scores,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// NewJob stamps a job with a fresh id and creation time.
func NewJob(kind string) Job {
	return Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// Generator publishes rendering jobs, fire-and-forget.
type Generator interface {
	Generate(ctx context.Context, job Job) error
	Close() error
}

// NopGenerator drops all jobs. Used when media generation is disabled.
type NopGenerator struct{}

func (NopGenerator) Generate(ctx context.Context, job Job) error {
	logger.GetLogger().WithComponent("media").WithFields(logger.Fields{
		"job_id": job.ID,
		"kind":   job.Kind,
	}).Debug("media generation disabled, dropping job")
	return nil
}

func (NopGenerator) Close() error { return nil }
