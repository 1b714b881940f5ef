package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeDuplicate
	outcomeRetry
	outcomeDeadLetter
)

type dispatchResult struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	fields  map[string]any
	err     error
}

// dispatch resolves and publishes one row. It never touches the database;
// settle records the result.
func (s *Service) dispatch(ctx context.Context, row models.OutboxEvent) dispatchResult {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}

	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return dispatchResult{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, fields: fields, err: err}
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["order_id"] = resolved.OrderID.String()
	fields["event_id"] = resolved.Envelope.EventID

	if s.dedupe != nil {
		seen, err := s.dedupe.CheckAndMark(ctx, dedupeScope, row.ID)
		if err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox dedupe check failed, publishing anyway")
		}
		if seen {
			return dispatchResult{outcome: outcomeDuplicate, fields: fields}
		}
	}

	err = s.publish(ctx, row, resolved)
	if err == nil {
		return dispatchResult{outcome: outcomePublished, fields: fields}
	}

	if s.dedupe != nil {
		if relErr := s.dedupe.Release(ctx, dedupeScope, row.ID); relErr != nil {
			s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox dedupe release failed")
		}
	}
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return dispatchResult{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, fields: fields, err: err}
	}
	if row.AttemptCount+1 >= s.maxAttempts {
		return dispatchResult{
			outcome: outcomeDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			fields:  fields,
			err:     fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err),
		}
	}
	return dispatchResult{outcome: outcomeRetry, fields: fields, err: err}
}

func (s *Service) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	key := resolved.OrderID.String()
	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"order_id":       key,
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// An ordered publisher pauses the key after a failure until resumed.
		pub.ResumePublish(key)
		return err
	}
	return nil
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, res dispatchResult) error {
	logCtx := s.logg.WithFields(ctx, res.fields)
	switch res.outcome {
	case outcomePublished, outcomeDuplicate:
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		if res.outcome == outcomeDuplicate {
			s.logg.Info(logCtx, "outbox event already dispatched")
			return nil
		}
		s.metrics.IncPublished(string(row.EventType))
		s.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		s.metrics.IncFailed(string(row.EventType))
		s.logg.Warn(s.logg.WithField(logCtx, "error", res.err.Error()), "outbox publish failed, will retry")
		if err := s.repo.MarkFailedTx(tx, row.ID, res.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
	case outcomeDeadLetter:
		s.metrics.IncDeadLettered(string(row.EventType), string(res.reason))
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":        res.err.Error(),
			"error_reason": res.reason,
		}), "outbox event dead-lettered")
		msg := res.err.Error()
		if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       row.ID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Payload:       row.Payload,
			ErrorReason:   res.reason,
			ErrorMessage:  &msg,
			AttemptCount:  row.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("insert dlq %s: %w", row.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, row.ID, res.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
	}
	return nil
}
