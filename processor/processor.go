package processor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"matchflow/config"
	"matchflow/internal/metrics"
	"matchflow/internal/models"
	"matchflow/internal/queue"
	"matchflow/logger"
	"matchflow/writer"
)

// Processor drains the work queue, enriches every event in a batch and
// appends the results to the sink. Workers process batches independently;
// events inside one batch stay in arrival order.
type Processor struct {
	cfg       config.ProcessorConfig
	sinkCfg   config.SinkConfig
	flags     *config.FeatureFlags
	queue     queue.Queue
	enricher  *Enricher
	sink      writer.RowSink
	livescore *writer.LivescoreStore
	archive   *writer.ParquetArchive
	log       *logger.Log

	ctx    context.Context
	cancel context.CancelFunc

	// drainCtx outlives ctx so a batch already dequeued finishes its
	// lookups and writes instead of being abandoned mid-batch. It is
	// cancelled only after the workers have exited.
	drainCtx    context.Context
	drainCancel context.CancelFunc

	wg      *sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewProcessor(
	cfg config.ProcessorConfig,
	sinkCfg config.SinkConfig,
	flags *config.FeatureFlags,
	q queue.Queue,
	enricher *Enricher,
	sink writer.RowSink,
	livescore *writer.LivescoreStore,
	archive *writer.ParquetArchive,
) *Processor {
	return &Processor{
		cfg:       cfg,
		sinkCfg:   sinkCfg,
		flags:     flags,
		queue:     q,
		enricher:  enricher,
		sink:      sink,
		livescore: livescore,
		archive:   archive,
		log:       logger.GetLogger(),
		wg:        &sync.WaitGroup{},
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.drainCtx, p.drainCancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	for i := 0; i < p.cfg.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.log.WithComponent("processor").WithFields(logger.Fields{
		"workers": p.cfg.MaxWorkers,
	}).Info("processor started")
	return nil
}

func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.drainCancel()
	p.log.WithComponent("processor").Info("processor stopped")
}

func (p *Processor) worker(id int) {
	defer p.wg.Done()

	log := p.log.WithComponent("processor").WithFields(logger.Fields{"worker": id})
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	for {
		batch, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return
			case errors.Is(err, queue.ErrClosed):
				log.Info("work queue closed, worker exiting")
				return
			case errors.Is(err, queue.ErrEmpty):
				continue
			default:
				log.WithError(err).Error("failed to dequeue batch")
				select {
				case <-p.ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
		}

		processed := p.processBatch(rng, batch)
		log.WithFields(logger.Fields{
			"fixture":   batch.FixtureID,
			"feed":      batch.FeedName,
			"events":    len(batch.Events),
			"processed": processed,
		}).Info("processed batch")

		if batch.MessageID != "" {
			if err := p.queue.Ack(p.drainCtx, batch.MessageID); err != nil {
				log.WithError(err).Warn("failed to ack batch")
			}
		}
	}
}

// processBatch handles one batch end to end and returns the number of events
// that produced an enriched record.
func (p *Processor) processBatch(rng *rand.Rand, batch models.MatchBatch) int {
	log := p.log.WithComponent("processor").WithFields(logger.Fields{
		"fixture": batch.FixtureID,
		"feed":    batch.FeedName,
	})

	if p.flags.DebugMode {
		log.WithFields(logger.Fields{"payload": string(batch.Raw)}).Debug("inbound batch payload")
	}

	if batch.FeedName == models.FeedLiveScore && p.flags.SaveLivescoreEvents && p.livescore != nil {
		if err := p.livescore.Append(batch.FixtureID, batch.Raw); err != nil {
			log.WithError(err).Error("failed to persist livescore batch")
		}
	}

	processed := 0
	for _, ev := range batch.Events {
		if malformed(ev) {
			metrics.EventsProcessed.WithLabelValues("skipped").Inc()
			log.WithFields(logger.Fields{
				"event_id": ev.ID,
				"type_id":  ev.TypeID,
			}).Warn("skipping malformed event")
			continue
		}

		rec := p.enricher.Enrich(p.drainCtx, ev, batch.FixtureID, batch.FeedName)
		p.deliver(rng, log, rec)

		metrics.EventsProcessed.WithLabelValues("processed").Inc()
		logger.IncrementEventProcessed()
		processed++
	}
	return processed
}

// deliver writes one enriched record to the configured destinations. Sink
// appends are paced with a randomized delay so the destination's write quota
// is never exhausted by a burst.
func (p *Processor) deliver(rng *rand.Rand, log *logger.Entry, rec models.EnrichedRecord) {
	if p.flags.SaveEnrichedParquet && p.archive != nil {
		p.archive.Write(rec)
	}

	if !p.flags.SaveToSheet || p.sink == nil {
		return
	}

	if err := p.sink.AppendRow(p.drainCtx, rec.Row()); err != nil {
		metrics.SinkWrites.WithLabelValues("error").Inc()
		log.WithError(err).WithFields(logger.Fields{
			"event_id": rec.EventID,
		}).Error("failed to append row to sink")
	} else {
		metrics.SinkWrites.WithLabelValues("ok").Inc()
	}

	p.pace(rng)
}

// pace sleeps a random duration inside the configured window, honoring
// shutdown.
func (p *Processor) pace(rng *rand.Rand) {
	window := p.sinkCfg.DelayMax - p.sinkCfg.DelayMin
	delay := p.sinkCfg.DelayMin
	if window > 0 {
		delay += time.Duration(rng.Int63n(int64(window)))
	}

	select {
	case <-p.drainCtx.Done():
	case <-time.After(delay):
	}
}

// malformed reports whether an event is missing the identity fields required
// for enrichment.
func malformed(ev models.RawEvent) bool {
	return ev.ID == 0 || ev.TypeID == 0
}
