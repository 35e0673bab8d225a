package processor

import (
	"context"

	"matchflow/internal/media"
	"matchflow/internal/metrics"
	"matchflow/internal/models"
	"matchflow/logger"
)

// handlerFunc reacts to one qualifier on a card event. Handlers perform side
// effects only and never alter the enriched record.
type handlerFunc func(ctx context.Context, e *Enricher, q models.Qualifier, rec models.EnrichedRecord)

// qualifierHandlers maps provider qualifier ids to card media handlers. New
// card variants register here.
var qualifierHandlers = map[int]handlerFunc{
	models.YellowCardQualifierID: handleCardQualifier,
	models.RedCardQualifierID:    handleCardQualifier,
}

func cardColor(qualifierID int) string {
	switch qualifierID {
	case models.YellowCardQualifierID:
		return "yellow"
	case models.RedCardQualifierID:
		return "red"
	default:
		return ""
	}
}

// handleCardQualifier publishes one card media job for a yellow or red card.
func handleCardQualifier(ctx context.Context, e *Enricher, q models.Qualifier, rec models.EnrichedRecord) {
	color := cardColor(q.QualifierID)
	log := e.log.WithComponent("processor").WithFields(logger.Fields{
		"event_id":   rec.EventID,
		"fixture":    rec.FixtureID,
		"card_color": color,
	})

	if !e.flags.EnableCardMedia {
		log.Debug("card media disabled, skipping")
		return
	}
	if rec.PlayerName == models.UnknownName {
		log.Error("no player data for card event, skipping media")
		return
	}

	job := media.NewJob(media.KindCard)
	job.CardColor = color
	job.PlayerName = rec.PlayerName
	job.PlayerPhotoURL = rec.PlayerPhotoURL
	job.FixtureID = rec.FixtureID

	if err := e.media.Generate(ctx, job); err != nil {
		log.WithError(err).Error("failed to publish card media job")
		return
	}
	metrics.MediaJobs.WithLabelValues(media.KindCard).Inc()
	logger.IncrementMediaJob()
	log.Info("published card media job")
}
