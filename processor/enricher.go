package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"matchflow/config"
	"matchflow/internal/catalog"
	"matchflow/internal/media"
	"matchflow/internal/metrics"
	"matchflow/internal/models"
	"matchflow/logger"
)

// Catalog is the slice of the reference catalog the enricher needs.
type Catalog interface {
	EventTypeByProviderID(ctx context.Context, id int) (*catalog.Record, error)
	TeamByProviderID(ctx context.Context, id string) (*catalog.Record, error)
	PlayerByProviderID(ctx context.Context, id string) (*catalog.Record, error)
	QualifierByProviderID(ctx context.Context, id int) (*catalog.Record, error)
}

// ScoreLookup resolves the current scoreline for goal media payloads.
type ScoreLookup interface {
	MatchScores(ctx context.Context, fixtureUUID string) (json.RawMessage, error)
}

// Enricher resolves reference data for one raw event, classifies its
// qualifiers and dispatches media side effects. Enrichment is a pure
// function of the event and the catalog's current state: resolution
// failures degrade to "Unknown" and never abort the record.
type Enricher struct {
	catalog Catalog
	media   media.Generator
	scores  ScoreLookup
	flags   *config.FeatureFlags
	log     *logger.Log
}

func NewEnricher(cat Catalog, gen media.Generator, scores ScoreLookup, flags *config.FeatureFlags) *Enricher {
	return &Enricher{
		catalog: cat,
		media:   gen,
		scores:  scores,
		flags:   flags,
		log:     logger.GetLogger(),
	}
}

// Enrich always returns a fully populated record for a well-formed event.
func (e *Enricher) Enrich(ctx context.Context, ev models.RawEvent, fixtureID, feedName string) models.EnrichedRecord {
	log := e.log.WithComponent("processor").WithFields(logger.Fields{
		"event_id": ev.ID,
		"type_id":  ev.TypeID,
		"fixture":  fixtureID,
		"feed":     feedName,
	})

	eventType := e.resolve(ctx, log, "event_type", func() (*catalog.Record, error) {
		return e.catalog.EventTypeByProviderID(ctx, ev.TypeID)
	})
	team := e.resolve(ctx, log, "team", func() (*catalog.Record, error) {
		return e.catalog.TeamByProviderID(ctx, ev.ContestantID)
	})
	player := e.resolve(ctx, log, "player", func() (*catalog.Record, error) {
		return e.catalog.PlayerByProviderID(ctx, ev.PlayerID)
	})

	rec := models.EnrichedRecord{
		EventID:       ev.ID,
		FixtureID:     fixtureID,
		FeedName:      feedName,
		TypeID:        ev.TypeID,
		EventTypeName: recordName(eventType),
		TeamName:      recordName(team),
		PlayerName:    recordName(player),
		PeriodID:      ev.PeriodID,
		TimeMin:       ev.TimeMin,
		TimeSec:       ev.TimeSec,
		TimeStamp:     ev.TimeStamp,
		X:             ev.X,
		Y:             ev.Y,
	}
	if player != nil {
		rec.PlayerPhotoURL = player.Photo
	}
	if team != nil {
		rec.TeamGoalTemplate = team.GoalTemplate
	}

	if ev.TypeID == models.GoalEventTypeID && feedName != models.FeedLiveScore {
		e.handleGoal(ctx, rec)
	}

	rec.QualifierSummary = e.processQualifiers(ctx, ev, rec)
	return rec
}

// resolve performs one failure-tolerant catalog lookup.
func (e *Enricher) resolve(ctx context.Context, log *logger.Entry, field string, fn func() (*catalog.Record, error)) *catalog.Record {
	record, err := fn()
	if err != nil {
		metrics.CatalogMisses.Inc()
		if errors.Is(err, catalog.ErrNotFound) {
			log.WithFields(logger.Fields{"field": field}).Debug("no reference record for id")
		} else {
			log.WithError(err).WithFields(logger.Fields{"field": field}).Warn("reference lookup failed")
		}
		return nil
	}
	return record
}

func recordName(r *catalog.Record) string {
	if r == nil || r.Name == "" {
		return models.UnknownName
	}
	return r.Name
}

// handleGoal publishes a goal media job. Missing inputs short-circuit only
// the side effect, never the record.
func (e *Enricher) handleGoal(ctx context.Context, rec models.EnrichedRecord) {
	log := e.log.WithComponent("processor").WithFields(logger.Fields{
		"event_id": rec.EventID,
		"fixture":  rec.FixtureID,
	})

	if !e.flags.EnableGoalMedia {
		log.Debug("goal media disabled, skipping")
		return
	}
	if rec.PlayerName == models.UnknownName {
		log.Error("no player data for goal event, skipping media")
		return
	}
	if rec.FixtureID == "" {
		log.Error("no fixture id for goal event, skipping media")
		return
	}

	var scores json.RawMessage
	if e.scores != nil {
		var err error
		scores, err = e.scores.MatchScores(ctx, rec.FixtureID)
		if err != nil {
			log.WithError(err).Error("scoreline lookup failed, skipping goal media")
			return
		}
	}

	job := media.NewJob(media.KindGoal)
	job.PlayerName = rec.PlayerName
	job.PlayerPhotoURL = rec.PlayerPhotoURL
	job.GoalTemplate = rec.TeamGoalTemplate
	job.FixtureID = rec.FixtureID
	job.Scores = scores

	if err := e.media.Generate(ctx, job); err != nil {
		log.WithError(err).Error("failed to publish goal media job")
		return
	}
	metrics.MediaJobs.WithLabelValues(media.KindGoal).Inc()
	logger.IncrementMediaJob()
	log.WithFields(logger.Fields{"player": rec.PlayerName}).Info("published goal media job")
}

// processQualifiers renders the qualifier summary and fires any matching
// dispatch-table handler. Handlers never touch the summary.
func (e *Enricher) processQualifiers(ctx context.Context, ev models.RawEvent, rec models.EnrichedRecord) string {
	log := e.log.WithComponent("processor").WithFields(logger.Fields{"event_id": ev.ID})

	var parts []string
	for _, q := range ev.Qualifiers {
		if q.QualifierID == 0 {
			continue
		}

		if handler, ok := qualifierHandlers[q.QualifierID]; ok &&
			ev.TypeID == models.CardEventTypeID &&
			rec.FeedName != models.FeedLiveScore {
			handler(ctx, e, q, rec)
		}

		name := models.UnknownName
		if info := e.resolve(ctx, log, "qualifier", func() (*catalog.Record, error) {
			return e.catalog.QualifierByProviderID(ctx, q.QualifierID)
		}); info != nil && info.Name != "" {
			name = info.Name
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, q.Value))
	}
	return strings.Join(parts, ", ")
}
