// Package events handles event emission for dedup and output lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for Fern
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitDedupCompleted emits a dedup.completed event for a project
func (e *Emitter) EmitDedupCompleted(ctx context.Context, tenantID string, projectID uuid.UUID, result models.DedupResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDedupCompleted")
	defer span.End()

	event := &kafka.DedupEvent{
		EventType:       "dedup.completed",
		SchemaVersion:   SchemaVersion,
		TenantID:        tenantID,
		ProjectID:       projectID.String(),
		GroupsFormed:    result.GroupsFormed,
		SuppressedCount: result.SuppressedCount,
	}

	if err := e.producer.PublishDedupEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit dedup.completed event")
		return err
	}

	return nil
}

// EmitOutputCreated emits an output.created event
func (e *Emitter) EmitOutputCreated(ctx context.Context, output *models.Output, sourceCount int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitOutputCreated")
	defer span.End()

	event := &kafka.OutputEvent{
		EventType:     "output.created",
		SchemaVersion: SchemaVersion,
		TenantID:      output.TenantID,
		ProjectID:     output.ProjectID.String(),
		OutputID:      output.ID.String(),
		Mode:          output.Mode,
		SourceCount:   sourceCount,
		Stats:         output.QualityStats,
	}

	if err := e.producer.PublishOutputEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit output.created event")
		return err
	}

	return nil
}

// EmitOutputDeleted emits an output.deleted event
func (e *Emitter) EmitOutputDeleted(ctx context.Context, tenantID string, projectID, outputID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitOutputDeleted")
	defer span.End()

	event := &kafka.OutputEvent{
		EventType:     "output.deleted",
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		ProjectID:     projectID.String(),
		OutputID:      outputID.String(),
	}

	if err := e.producer.PublishOutputEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit output.deleted event")
		return err
	}

	return nil
}
