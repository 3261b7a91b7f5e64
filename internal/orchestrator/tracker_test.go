package orchestrator

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_StartIsIdempotentWhileRunning(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()

	first, started := tr.Start(userID)
	require.True(t, started)
	assert.Equal(t, StateRunning, first.State)
	assert.NotEmpty(t, first.TaskID)

	second, started := tr.Start(userID)
	assert.False(t, started)
	assert.Equal(t, first.TaskID, second.TaskID)
}

func TestTracker_UpdateRecordsProgress(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()
	st, _ := tr.Start(userID)

	tr.Update(userID, "analysis", "analyzing market position")

	got, ok := tr.Get(st.TaskID)
	require.True(t, ok)
	assert.Equal(t, StateRunning, got.State)
	assert.Equal(t, "analysis", got.Phase)
	assert.Equal(t, "analyzing market position", got.Message)
}

func TestTracker_CompleteAttachesResult(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()
	st, _ := tr.Start(userID)

	result := &RunResult{BatchID: uuid.New(), AnomalyCount: 2}
	tr.Complete(userID, result, "run completed with 5 recommendations")

	got, ok := tr.Get(st.TaskID)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, got.State)
	require.NotNil(t, got.Result)
	assert.Equal(t, result.BatchID, got.Result.BatchID)
}

func TestTracker_TerminalStateIsSticky(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()
	st, _ := tr.Start(userID)

	tr.Fail(userID, "pricing analysis failed during data collection")
	tr.Update(userID, "analysis", "should not land")
	tr.Complete(userID, &RunResult{}, "should not land either")

	got, ok := tr.Get(st.TaskID)
	require.True(t, ok)
	assert.Equal(t, StateError, got.State)
	assert.Equal(t, "pricing analysis failed during data collection", got.Message)
	assert.Nil(t, got.Result)
}

func TestTracker_TerminalPayloadPersistsUntilNextStart(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()

	first, _ := tr.Start(userID)
	tr.Complete(userID, &RunResult{BatchID: uuid.New()}, "done")

	// Readable indefinitely, by task and by user.
	got, ok := tr.Get(first.TaskID)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, got.State)

	byUser, ok := tr.GetByUser(userID)
	require.True(t, ok)
	assert.Equal(t, first.TaskID, byUser.TaskID)

	second, started := tr.Start(userID)
	require.True(t, started)
	assert.NotEqual(t, first.TaskID, second.TaskID)

	_, ok = tr.Get(first.TaskID)
	assert.False(t, ok, "superseded task should no longer resolve")

	current, ok := tr.GetByUser(userID)
	require.True(t, ok)
	assert.Equal(t, second.TaskID, current.TaskID)
	assert.Equal(t, StateRunning, current.State)
}

func TestTracker_GetUnknownTask(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Get(uuid.NewString())
	assert.False(t, ok)

	_, ok = tr.GetByUser(uuid.New())
	assert.False(t, ok)
}

func TestTracker_UpdateUnknownUserIsNoop(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()

	tr.Update(userID, "analysis", "nothing to update")
	tr.Fail(userID, "nothing to fail")

	_, ok := tr.GetByUser(userID)
	assert.False(t, ok)
}

func TestTracker_ConcurrentStartsPickOneWinner(t *testing.T) {
	tr := NewTracker()
	userID := uuid.New()

	const attempts = 32
	var wg sync.WaitGroup
	results := make([]bool, attempts)
	tasks := make([]string, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, started := tr.Start(userID)
			results[i] = started
			tasks[i] = st.TaskID
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, started := range results {
		if started {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	for i := 1; i < attempts; i++ {
		assert.Equal(t, tasks[0], tasks[i], "every caller must see the same task")
	}
}

func TestTracker_UsersDoNotInterfere(t *testing.T) {
	tr := NewTracker()
	alice, bob := uuid.New(), uuid.New()

	a, startedA := tr.Start(alice)
	b, startedB := tr.Start(bob)
	require.True(t, startedA)
	require.True(t, startedB)
	assert.NotEqual(t, a.TaskID, b.TaskID)

	tr.Fail(alice, "failed")

	gotB, ok := tr.GetByUser(bob)
	require.True(t, ok)
	assert.Equal(t, StateRunning, gotB.State)
}
