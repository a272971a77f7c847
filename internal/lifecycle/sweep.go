package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

// SweepResult summarizes one retention sweep.
type SweepResult struct {
	Erased      map[entity.Category]int
	AuditPruned int64
	Failed      int
}

// Run executes scheduled retention sweeps until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	c.logger.Info("retention sweeper started",
		zap.Duration("interval", c.config.SweepInterval),
		zap.Duration("entity_window", c.config.EntityWindow),
		zap.Duration("audit_window", c.config.AuditWindow))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep erases entities whose last update precedes the retention cutoff
// and prunes expired audit rows. It processes bounded batches and applies
// the normal erasure protocol per entity, so a crash mid-sweep is
// harmless: the next run simply re-selects whatever is still eligible.
func (c *Coordinator) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Sweep")
	defer span.End()

	start := time.Now()
	defer func() {
		SweepDuration.Observe(time.Since(start).Seconds())
	}()

	result := &SweepResult{Erased: make(map[entity.Category]int)}
	cutoff := time.Now().UTC().Add(-c.config.EntityWindow)

	for _, category := range []entity.Category{entity.CategoryJob, entity.CategoryCandidate} {
		if err := c.sweepCategory(ctx, category, cutoff, result); err != nil {
			return result, err
		}
	}

	pruned, err := c.store.DeleteMatchEventsBefore(ctx, time.Now().UTC().Add(-c.config.AuditWindow))
	if err != nil {
		return result, fmt.Errorf("pruning audit rows: %w", err)
	}
	result.AuditPruned = pruned

	c.logger.Info("retention sweep complete",
		zap.Int("jobs_erased", result.Erased[entity.CategoryJob]),
		zap.Int("candidates_erased", result.Erased[entity.CategoryCandidate]),
		zap.Int64("audit_rows_pruned", result.AuditPruned),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

func (c *Coordinator) sweepCategory(ctx context.Context, category entity.Category, cutoff time.Time, result *SweepResult) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		expired, err := c.store.SelectExpired(ctx, category, cutoff, c.config.BatchSize)
		if err != nil {
			return fmt.Errorf("selecting expired %s entities: %w", category, err)
		}
		if len(expired) == 0 {
			return nil
		}

		erased := 0
		for _, e := range expired {
			if err := c.Erase(ctx, category, e.ExternalID); err != nil {
				// Leave it for the next sweep. Log the anonymized ids
				// only, never profile content.
				result.Failed++
				c.logger.Warn("sweep erasure failed",
					zap.String("category", string(category)),
					zap.String("entity_id", e.ID.String()),
					zap.Error(err))
				continue
			}
			erased++
			result.Erased[category]++
			SweepDeletions.WithLabelValues(string(category)).Inc()
			c.logger.Info("sweep erased entity",
				zap.String("category", string(category)),
				zap.String("entity_id", e.ID.String()),
				zap.Time("last_updated", e.UpdatedAt))
		}

		// A batch where nothing could be erased would re-select the same
		// rows forever.
		if erased == 0 {
			return nil
		}
		if len(expired) < c.config.BatchSize {
			return nil
		}
	}
}
