// Package kafka consumes daily observation records from the intake topic and
// applies them through the recompute runner.
package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/climate-insights/internal/domain"
	"github.com/couchcryptid/climate-insights/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ObservationApplier persists a batch of observations and refreshes the
// derived state they invalidate.
type ObservationApplier interface {
	ApplyObservations(ctx context.Context, obs []domain.Observation) error
}

// Intake consumes one JSON ObservationRecord per message from the
// observation topic and feeds it to the applier. Offsets are committed only
// after a successful apply, so delivery is at-least-once over an idempotent
// write path.
type Intake struct {
	reader  *kafkago.Reader
	applier ObservationApplier
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIntake creates a consumer-group reader over the observation topic.
func NewIntake(brokers []string, topic, groupID string, applier ObservationApplier, logger *slog.Logger, metrics *observability.Metrics) *Intake {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return &Intake{reader: reader, applier: applier, logger: logger, metrics: metrics}
}

// Run consumes until the context is cancelled. Malformed records are
// counted, logged, and skipped; apply failures retry the same record with
// backoff rather than advancing past it.
func (in *Intake) Run(ctx context.Context) error {
	in.logger.Info("kafka intake starting",
		"topic", in.reader.Config().Topic, "group_id", in.reader.Config().GroupID)

	backoff := initialBackoff
	for {
		msg, err := in.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				in.logger.Info("kafka intake stopping", "reason", ctx.Err())
				return nil
			}
			in.logger.Error("fetch observation message failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if in.processMessage(ctx, msg, &backoff) {
			in.commit(ctx, msg)
		}
		if ctx.Err() != nil {
			in.logger.Info("kafka intake stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// processMessage parses and applies one record. It reports whether the
// message's offset may be committed.
func (in *Intake) processMessage(ctx context.Context, msg kafkago.Message, backoff *time.Duration) bool {
	rec, err := domain.ParseObservationRecord(msg.Value)
	if err != nil {
		in.metrics.IntakeRejected.Inc()
		in.logger.Warn("rejecting observation record",
			"error", err, "partition", msg.Partition, "offset", msg.Offset)
		// a poison message never becomes valid; skip past it
		return true
	}

	for {
		err := in.applier.ApplyObservations(ctx, rec.Observations())
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		in.logger.Error("apply observations failed",
			"station_id", rec.StationID, "date", rec.Date, "error", err, "retry_in", *backoff)
		if !sleepWithContext(ctx, *backoff) {
			return false
		}
		*backoff = nextBackoff(*backoff, maxBackoff)
	}
}

func (in *Intake) commit(ctx context.Context, msg kafkago.Message) {
	if err := in.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		in.logger.Error("commit offset failed",
			"partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
}

// Close releases the consumer group membership.
func (in *Intake) Close() error {
	return in.reader.Close()
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
