package dedup

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/fact"
	"github.com/Ramsey-B/fern/pkg/grouping"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

type fakeStore struct {
	facts      []models.Fact
	writeCalls int
	lastWrites []fact.SuppressionWrite
	lastClears []uuid.UUID
	listErr    error
	writeErr   error
}

func (s *fakeStore) ListByProject(_ context.Context, _ string, _ uuid.UUID, _ fact.ListOptions) ([]models.Fact, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Fact, len(s.facts))
	copy(out, s.facts)
	return out, nil
}

func (s *fakeStore) WriteDedupState(_ context.Context, _ string, writes []fact.SuppressionWrite, clearIDs []uuid.UUID) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writeCalls++
	s.lastWrites = writes
	s.lastClears = clearIDs

	apply := func(id uuid.UUID, fn func(f *models.Fact)) {
		for i := range s.facts {
			if s.facts[i].ID == id {
				fn(&s.facts[i])
			}
		}
	}

	suppressed := 0
	for _, w := range writes {
		w := w
		for _, id := range w.MemberIDs {
			id := id
			apply(id, func(f *models.Fact) {
				f.DuplicateGroupID = &w.GroupID
				f.CanonicalFactID = &w.CanonicalID
				f.IsSuppressed = id != w.CanonicalID
			})
			if id != w.CanonicalID {
				suppressed++
			}
		}
	}
	for _, id := range clearIDs {
		apply(id, func(f *models.Fact) {
			f.DuplicateGroupID = nil
			f.IsSuppressed = false
			f.CanonicalFactID = nil
		})
	}
	return suppressed, nil
}

type fakeLock struct {
	released bool
}

func (l *fakeLock) Release(_ context.Context) error {
	l.released = true
	return nil
}

type fakeLocker struct {
	busy bool
	keys []string
	lock *fakeLock
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (Lock, error) {
	if l.busy {
		return nil, redis.ErrLockNotAcquired
	}
	l.keys = append(l.keys, key)
	l.lock = &fakeLock{}
	return l.lock, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestEngine(store *fakeStore, locker *fakeLocker) *Engine {
	builder := grouping.NewBuilder(grouping.DefaultConfig())
	return NewEngine(store, locker, nil, builder, DefaultConfig(), testLogger())
}

func testFact(text string, createdAt time.Time) models.Fact {
	return models.Fact{
		ID:        uuid.New(),
		TenantID:  "tenant-1",
		ProjectID: uuid.New(),
		Text:      text,
		CreatedAt: createdAt,
	}
}

func TestRun_SuppressesNearDuplicates(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older := testFact("The sky is blue.", base)
	newer := testFact("The sky is blue", base.Add(time.Hour))
	unrelated := testFact("Water boils at one hundred degrees Celsius", base)

	store := &fakeStore{facts: []models.Fact{older, newer, unrelated}}
	locker := &fakeLocker{}
	engine := newTestEngine(store, locker)

	result, err := engine.Run(context.Background(), "tenant-1", uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 1, result.GroupsFormed)
	assert.Equal(t, 1, result.SuppressedCount)
	require.Len(t, store.lastWrites, 1)
	assert.Equal(t, older.ID, store.lastWrites[0].CanonicalID, "older fact should win the canonical tie-break")
	assert.ElementsMatch(t, []uuid.UUID{older.ID, newer.ID}, store.lastWrites[0].MemberIDs)
	assert.Empty(t, store.lastClears)
	assert.True(t, locker.lock.released)
}

func TestRun_Idempotent(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{facts: []models.Fact{
		testFact("The sky is blue.", base),
		testFact("The sky is blue", base.Add(time.Hour)),
		testFact("Water boils at one hundred degrees Celsius", base),
	}}
	engine := newTestEngine(store, &fakeLocker{})

	first, err := engine.Run(context.Background(), "tenant-1", uuid.New())
	require.NoError(t, err)
	firstState := snapshotDedupState(store.facts)

	second, err := engine.Run(context.Background(), "tenant-1", uuid.New())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstState, snapshotDedupState(store.facts), "a re-run must not change suppression state")
	assert.Empty(t, store.lastClears)
}

func TestRun_PinnedFactBecomesCanonical(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older := testFact("Honey never spoils in sealed jars", base)
	pinned := testFact("Honey never spoils in sealed jars!", base.Add(time.Hour))
	pinned.IsPinned = true

	store := &fakeStore{facts: []models.Fact{older, pinned}}
	engine := newTestEngine(store, &fakeLocker{})

	_, err := engine.Run(context.Background(), "tenant-1", uuid.New())
	require.NoError(t, err)

	require.Len(t, store.lastWrites, 1)
	assert.Equal(t, pinned.ID, store.lastWrites[0].CanonicalID)
	assert.ElementsMatch(t, []uuid.UUID{older.ID, pinned.ID}, store.lastWrites[0].MemberIDs)
}

func TestRun_ClearsStaleSuppression(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	groupID := uuid.New()
	canonicalID := uuid.New()

	stale := testFact("Edited into something entirely different now", base)
	stale.DuplicateGroupID = &groupID
	stale.IsSuppressed = true
	stale.CanonicalFactID = &canonicalID

	other := testFact("Water boils at one hundred degrees Celsius", base)

	store := &fakeStore{facts: []models.Fact{stale, other}}
	engine := newTestEngine(store, &fakeLocker{})

	result, err := engine.Run(context.Background(), "tenant-1", uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 0, result.GroupsFormed)
	assert.Equal(t, 0, result.SuppressedCount)
	assert.Equal(t, []uuid.UUID{stale.ID}, store.lastClears)

	for _, f := range store.facts {
		assert.False(t, f.IsSuppressed)
		assert.Nil(t, f.DuplicateGroupID)
		assert.Nil(t, f.CanonicalFactID)
	}
}

func TestRun_LockBusy(t *testing.T) {
	store := &fakeStore{}
	engine := newTestEngine(store, &fakeLocker{busy: true})

	_, err := engine.Run(context.Background(), "tenant-1", uuid.New())
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	assert.Equal(t, 0, store.writeCalls)
}

func TestRun_LockKeyIsPerProject(t *testing.T) {
	projectID := uuid.New()
	store := &fakeStore{}
	locker := &fakeLocker{}
	engine := newTestEngine(store, locker)

	_, err := engine.Run(context.Background(), "tenant-1", projectID)
	require.NoError(t, err)
	require.Len(t, locker.keys, 1)
	assert.Equal(t, "dedup:"+projectID.String(), locker.keys[0])
}

func snapshotDedupState(facts []models.Fact) map[uuid.UUID][3]string {
	state := make(map[uuid.UUID][3]string, len(facts))
	for _, f := range facts {
		group, canonical := "", ""
		if f.DuplicateGroupID != nil {
			group = f.DuplicateGroupID.String()
		}
		if f.CanonicalFactID != nil {
			canonical = f.CanonicalFactID.String()
		}
		suppressed := "false"
		if f.IsSuppressed {
			suppressed = "true"
		}
		state[f.ID] = [3]string{group, suppressed, canonical}
	}
	return state
}
