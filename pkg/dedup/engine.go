// Package dedup runs the persisted hard-deduplication pass over a
// project's facts
package dedup

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/fact"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/grouping"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// FactStore is the persistence surface the engine needs
type FactStore interface {
	ListByProject(ctx context.Context, tenantID string, projectID uuid.UUID, opts fact.ListOptions) ([]models.Fact, error)
	WriteDedupState(ctx context.Context, tenantID string, writes []fact.SuppressionWrite, clearIDs []uuid.UUID) (int, error)
}

// Lock is a held advisory lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes dedup runs per project
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type redisLocker struct {
	inner *redis.Locker
}

// NewRedisLocker wraps a redis locker for the engine
func NewRedisLocker(l *redis.Locker) Locker {
	return &redisLocker{inner: l}
}

func (r *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := r.inner.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Config contains configuration for the dedup engine
type Config struct {
	// HardThreshold is the similarity at or above which facts are
	// persisted as duplicates. Kept well above the display-grouping
	// threshold; the two must never converge.
	HardThreshold float64
	LockTTL       time.Duration
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		HardThreshold: 0.92,
		LockTTL:       2 * time.Minute,
	}
}

// Engine performs hard-dedup runs: it partitions a project's facts into
// duplicate groups, picks each group's canonical fact, and persists the
// suppression state in one transaction
type Engine struct {
	store   FactStore
	locker  Locker
	emitter *events.Emitter
	builder *grouping.Builder
	config  Config
	logger  ectologger.Logger
}

// NewEngine creates a new dedup engine. emitter may be nil when event
// emission is disabled.
func NewEngine(store FactStore, locker Locker, emitter *events.Emitter, builder *grouping.Builder, config Config, logger ectologger.Logger) *Engine {
	if config.HardThreshold <= 0 {
		config.HardThreshold = DefaultConfig().HardThreshold
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultConfig().LockTTL
	}
	return &Engine{
		store:   store,
		locker:  locker,
		emitter: emitter,
		builder: builder,
		config:  config,
		logger:  logger,
	}
}

// Run executes a dedup pass for a project. Runs are idempotent: a second
// pass over unchanged facts recomputes the same groups and leaves every
// suppression field as it was. A run that cannot take the project lock
// conflicts with an in-flight run and is rejected rather than queued.
func (e *Engine) Run(ctx context.Context, tenantID string, projectID uuid.UUID) (models.DedupResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Engine.Run")
	defer span.End()

	start := time.Now()

	lock, err := e.locker.Acquire(ctx, "dedup:"+projectID.String(), e.config.LockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			metrics.DedupRunsTotal.WithLabelValues(tenantID, "locked").Inc()
			return models.DedupResult{}, httperror.NewHTTPError(http.StatusConflict, "dedup already running for this project")
		}
		e.logger.WithContext(ctx).WithError(err).Error("Failed to acquire dedup lock")
		return models.DedupResult{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to acquire dedup lock")
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to release dedup lock")
		}
	}()

	// Suppressed facts are re-read every run; prior suppression is an
	// output of this pass, never an input.
	facts, err := e.store.ListByProject(ctx, tenantID, projectID, fact.ListOptions{ShowSuppressed: true})
	if err != nil {
		metrics.DedupRunsTotal.WithLabelValues(tenantID, "failed").Inc()
		return models.DedupResult{}, err
	}

	groups := e.builder.Build(facts, e.config.HardThreshold)

	writes := make([]fact.SuppressionWrite, 0)
	inGroup := make(map[uuid.UUID]bool, len(facts))
	suppressed := 0
	for _, g := range groups {
		if g.IsSingleton() {
			continue
		}

		for _, id := range g.CollapsedIDs {
			inGroup[id] = true
		}
		suppressed += len(g.CollapsedIDs) - 1

		writes = append(writes, fact.SuppressionWrite{
			GroupID:     g.GroupID,
			CanonicalID: g.RepresentativeID,
			MemberIDs:   g.CollapsedIDs,
		})
	}

	// Facts carrying suppression state from an earlier run that are no
	// longer in a multi-member group get their dedup fields cleared.
	clearIDs := make([]uuid.UUID, 0)
	for _, f := range facts {
		if inGroup[f.ID] {
			continue
		}
		if f.DuplicateGroupID != nil || f.IsSuppressed || f.CanonicalFactID != nil {
			clearIDs = append(clearIDs, f.ID)
		}
	}

	if _, err := e.store.WriteDedupState(ctx, tenantID, writes, clearIDs); err != nil {
		metrics.DedupRunsTotal.WithLabelValues(tenantID, "failed").Inc()
		return models.DedupResult{}, err
	}

	result := models.DedupResult{
		GroupsFormed:    len(writes),
		SuppressedCount: suppressed,
	}

	metrics.DedupRunsTotal.WithLabelValues(tenantID, "completed").Inc()
	metrics.DedupRunDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
	metrics.FactsSuppressedTotal.WithLabelValues(tenantID).Add(float64(suppressed))

	if e.emitter != nil {
		// Event emission is best effort; the run already committed.
		if err := e.emitter.EmitDedupCompleted(ctx, tenantID, projectID, result); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit dedup completed event")
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id":       projectID.String(),
		"facts":            len(facts),
		"groups_formed":    result.GroupsFormed,
		"suppressed_count": result.SuppressedCount,
		"cleared":          len(clearIDs),
	}).Info("Dedup run completed")

	return result, nil
}
