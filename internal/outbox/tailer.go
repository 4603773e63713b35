package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/infra"
	"github.com/rollhaus/casino/internal/repository"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultBatchSize    = 200

	// housekeeping cadence and retention
	sweepInterval    = time.Hour
	requestRetention = 7 * 24 * time.Hour
	outboxRetention  = 24 * time.Hour
)

// Tailer polls event_outbox for unpublished rows and delivers each to the
// bus, optionally mirroring it to Kafka. Rows are stamped published only
// after delivery, so a row whose transaction commits late (bigserial ids
// commit out of order) is still picked up, and a crash re-delivers rather
// than loses; the bus dedupe window absorbs the repeats. On start the newest
// replay rows are reopened for the same reason.
type Tailer struct {
	pool     *pgxpool.Pool
	outbox   repository.OutboxRepository
	requests repository.RequestRepository
	bus      *Bus
	producer *infra.KafkaProducer
	logger   *slog.Logger

	interval  time.Duration
	batchSize int
	replay    int
}

// NewTailer creates a tailer. pollMs/replay <= 0 use defaults.
func NewTailer(
	pool *pgxpool.Pool,
	outboxRepo repository.OutboxRepository,
	requestRepo repository.RequestRepository,
	bus *Bus,
	producer *infra.KafkaProducer,
	pollMs, replay int,
	logger *slog.Logger,
) *Tailer {
	t := &Tailer{
		pool:      pool,
		outbox:    outboxRepo,
		requests:  requestRepo,
		bus:       bus,
		producer:  producer,
		logger:    logger,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
		replay:    100,
	}
	if pollMs > 0 {
		t.interval = time.Duration(pollMs) * time.Millisecond
	}
	if replay > 0 {
		t.replay = replay
	}
	return t
}

// Start begins tailing in a goroutine. Stops when ctx is cancelled.
func (t *Tailer) Start(ctx context.Context) error {
	replayed, err := t.outbox.Reopen(ctx, t.pool, t.replay)
	if err != nil {
		return err
	}

	t.logger.Info("outbox tailer started", "replayed", replayed, "interval", t.interval)

	go func() {
		ticker := time.NewTicker(t.interval)
		sweeper := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		defer sweeper.Stop()

		for {
			select {
			case <-ctx.Done():
				t.logger.Info("outbox tailer stopped")
				return
			case <-ticker.C:
				if err := t.drain(ctx); err != nil {
					t.logger.Error("outbox drain failed", "error", err)
				}
			case <-sweeper.C:
				t.housekeeping(ctx)
			}
		}
	}()
	return nil
}

// drain delivers every unpublished row, oldest first. The published stamp
// moves only after the bus has seen the batch.
func (t *Tailer) drain(ctx context.Context) error {
	for {
		rows, err := t.outbox.FetchUnpublished(ctx, t.pool, t.batchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		seqs := make([]int64, 0, len(rows))
		for _, se := range rows {
			if t.bus.Publish(se.Event) {
				t.mirror(ctx, se)
			}
			seqs = append(seqs, se.Seq)
		}
		if err := t.outbox.MarkPublished(ctx, t.pool, seqs); err != nil {
			return err
		}

		if len(rows) < t.batchSize {
			return nil
		}
	}
}

// mirror forwards the event to Kafka when the producer is enabled. Mirror
// failures never stall in-process delivery.
func (t *Tailer) mirror(ctx context.Context, se repository.SeqEvent) {
	if t.producer == nil || !t.producer.Enabled() {
		return
	}
	topic := "casino." + se.Event.AggregateType
	value, _ := json.Marshal(se.Event)
	if err := t.producer.Publish(ctx, topic, []byte(se.Event.AggregateID), value); err != nil {
		t.logger.Error("kafka mirror failed", "event_id", se.Event.EventID, "error", err)
	}
}

// housekeeping prunes old outbox rows and expired request ledger rows.
// Postgres has no TTL index, so retention runs on the tailer's clock.
func (t *Tailer) housekeeping(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := t.outbox.DeleteBefore(ctx, t.pool, now.Add(-outboxRetention)); err != nil {
		t.logger.Error("outbox prune failed", "error", err)
	} else if n > 0 {
		t.logger.Info("outbox pruned", "rows", n)
	}

	if n, err := t.requests.Sweep(ctx, t.pool, now.Add(-requestRetention)); err != nil {
		t.logger.Error("request ledger sweep failed", "error", err)
	} else if n > 0 {
		t.logger.Info("request ledger swept", "rows", n)
	}
}
