package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/matchd/internal/entity"
	"github.com/fyrsmithlabs/matchd/internal/matching"
)

// age backdates an entity's UpdatedAt so the sweep selects it.
func (f *fakeStore) age(category entity.Category, externalID string, by time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.entities[key(category, externalID)]
	e.UpdatedAt = e.UpdatedAt.Add(-by)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("erases expired entities and keeps fresh ones", func(t *testing.T) {
		entities, index, gateway := newFakeStore(), newFakeIndex(), &fakeGateway{}
		c := newTestCoordinator(t, entities, index, gateway)

		for _, id := range []string{"cand-old-1", "cand-old-2", "cand-old-3", "cand-fresh"} {
			_, err := c.UpsertEntity(ctx, candidateInput(id, "Go"))
			require.NoError(t, err)
		}
		// Three entities past the 30 day window, batch size is 2, so the
		// sweep needs more than one batch.
		for _, id := range []string{"cand-old-1", "cand-old-2", "cand-old-3"} {
			entities.age(entity.CategoryCandidate, id, 31*24*time.Hour)
		}

		result, err := c.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Erased[entity.CategoryCandidate])
		assert.Zero(t, result.Failed)

		_, err = entities.GetEntity(ctx, entity.CategoryCandidate, "cand-fresh")
		assert.NoError(t, err)
		assert.Equal(t, 1, index.count("candidates"))
		checkIntegrity(t, entities, index)
	})

	t.Run("re-runnable after partial failure", func(t *testing.T) {
		entities, index, gateway := newFakeStore(), newFakeIndex(), &fakeGateway{}
		c := newTestCoordinator(t, entities, index, gateway)

		_, err := c.UpsertEntity(ctx, candidateInput("cand-old", "Go"))
		require.NoError(t, err)
		entities.age(entity.CategoryCandidate, "cand-old", 31*24*time.Hour)

		// Simulated crash: the row deletion fails mid-sweep.
		entities.eraseErr = errors.New("io error")
		result, err := c.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
		assert.Zero(t, result.Erased[entity.CategoryCandidate])

		// The resumed sweep re-selects the survivor and finishes the job.
		entities.eraseErr = nil
		result, err = c.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Erased[entity.CategoryCandidate])
		checkIntegrity(t, entities, index)

		// A third run finds nothing left to do.
		result, err = c.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Erased[entity.CategoryCandidate])
	})

	t.Run("prunes expired audit rows on their own window", func(t *testing.T) {
		entities, index, gateway := newFakeStore(), newFakeIndex(), &fakeGateway{}
		c := newTestCoordinator(t, entities, index, gateway)

		old := entity.MatchEvent{ID: uuid.New(), CreatedAt: time.Now().UTC().Add(-8 * 24 * time.Hour)}
		fresh := entity.MatchEvent{ID: uuid.New(), CreatedAt: time.Now().UTC()}
		require.NoError(t, entities.InsertMatchEvents(ctx, []entity.MatchEvent{old, fresh}))

		result, err := c.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.AuditPruned)
		assert.Len(t, entities.events, 1)
	})
}

func TestRecordMatchEvents(t *testing.T) {
	ctx := context.Background()
	entities, index, gateway := newFakeStore(), newFakeIndex(), &fakeGateway{}
	c := newTestCoordinator(t, entities, index, gateway)

	query := &entity.Entity{ID: uuid.New()}
	counterpart := &entity.Entity{ID: uuid.New()}
	result := &matching.Result{
		Query: query,
		Matches: []matching.Match{
			{Rank: 1, Entity: counterpart, Similarity: 0.8, Composite: 0.75},
		},
	}

	require.NoError(t, c.RecordMatchEvents(ctx, result))
	require.Len(t, entities.events, 1)
	ev := entities.events[0]
	assert.Equal(t, query.ID, ev.QueryEntityID)
	assert.Equal(t, counterpart.ID, ev.ResultEntityID)
	assert.Equal(t, 1, ev.Rank)
	assert.InDelta(t, 0.75, ev.CompositeScore, 1e-9)

	// Empty results are a no-op.
	require.NoError(t, c.RecordMatchEvents(ctx, &matching.Result{Query: query}))
	assert.Len(t, entities.events, 1)
}
