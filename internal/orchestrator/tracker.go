package orchestrator

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of one pricing run: a user with no status is idle,
// Start moves them to running, and a run ends in exactly one of the two
// terminal states.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Terminal reports whether the run has finished, successfully or not.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// TaskStatus is the pollable view of one run. Result is set once on
// completion and never mutated afterwards, so copies may share it.
type TaskStatus struct {
	TaskID    string     `json:"task_id"`
	UserID    uuid.UUID  `json:"user_id"`
	State     State      `json:"state"`
	Phase     string     `json:"phase,omitempty"`
	Message   string     `json:"message,omitempty"`
	Result    *RunResult `json:"result,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

const trackerShards = 16

type userShard struct {
	mu sync.RWMutex
	m  map[uuid.UUID]*TaskStatus
}

type taskShard struct {
	mu sync.RWMutex
	m  map[string]uuid.UUID
}

// TaskStatusTracker is the in-process run registry: one current status per
// user, addressable by task id. Both indexes are sharded so runs for
// different users never contend on one lock. A terminal status stays
// readable until the user's next Start replaces it.
type TaskStatusTracker struct {
	users [trackerShards]userShard
	tasks [trackerShards]taskShard
}

func NewTracker() *TaskStatusTracker {
	t := &TaskStatusTracker{}
	for i := range t.users {
		t.users[i].m = make(map[uuid.UUID]*TaskStatus)
	}
	for i := range t.tasks {
		t.tasks[i].m = make(map[string]uuid.UUID)
	}
	return t
}

func shardIndex(key []byte) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % trackerShards)
}

func (t *TaskStatusTracker) userShard(userID uuid.UUID) *userShard {
	return &t.users[shardIndex(userID[:])]
}

func (t *TaskStatusTracker) taskShard(taskID string) *taskShard {
	return &t.tasks[shardIndex([]byte(taskID))]
}

// Start registers a new run for the user and returns its status with
// started=true. If the user already has a non-terminal run, the existing
// status is returned with started=false; this is the per-user mutual
// exclusion the whole pipeline relies on.
func (t *TaskStatusTracker) Start(userID uuid.UUID) (TaskStatus, bool) {
	us := t.userShard(userID)

	us.mu.Lock()
	if cur, ok := us.m[userID]; ok && !cur.State.Terminal() {
		status := *cur
		us.mu.Unlock()
		return status, false
	}

	var evicted string
	if cur, ok := us.m[userID]; ok {
		evicted = cur.TaskID
	}

	now := time.Now().UTC()
	st := &TaskStatus{
		TaskID:    uuid.NewString(),
		UserID:    userID,
		State:     StateRunning,
		Message:   "run accepted",
		StartedAt: now,
		UpdatedAt: now,
	}
	us.m[userID] = st
	status := *st
	us.mu.Unlock()

	if evicted != "" {
		ts := t.taskShard(evicted)
		ts.mu.Lock()
		delete(ts.m, evicted)
		ts.mu.Unlock()
	}

	ts := t.taskShard(status.TaskID)
	ts.mu.Lock()
	ts.m[status.TaskID] = userID
	ts.mu.Unlock()

	return status, true
}

// Update records phase progress on a running task. Updates are
// last-write-wins; a terminal status is never overwritten.
func (t *TaskStatusTracker) Update(userID uuid.UUID, phase, message string) {
	t.mutate(userID, func(st *TaskStatus) {
		st.Phase = phase
		st.Message = message
	})
}

// Complete marks the user's run completed and attaches the compiled result.
func (t *TaskStatusTracker) Complete(userID uuid.UUID, result *RunResult, message string) {
	t.mutate(userID, func(st *TaskStatus) {
		st.State = StateCompleted
		st.Message = message
		st.Result = result
	})
}

// Fail marks the user's run failed with a human-readable message.
func (t *TaskStatusTracker) Fail(userID uuid.UUID, message string) {
	t.mutate(userID, func(st *TaskStatus) {
		st.State = StateError
		st.Message = message
	})
}

func (t *TaskStatusTracker) mutate(userID uuid.UUID, fn func(*TaskStatus)) {
	us := t.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	st, ok := us.m[userID]
	if !ok || st.State.Terminal() {
		return
	}
	fn(st)
	st.UpdatedAt = time.Now().UTC()
}

// Get returns the status addressed by task id. A task superseded by a newer
// run for the same user is gone.
func (t *TaskStatusTracker) Get(taskID string) (TaskStatus, bool) {
	ts := t.taskShard(taskID)
	ts.mu.RLock()
	userID, ok := ts.m[taskID]
	ts.mu.RUnlock()
	if !ok {
		return TaskStatus{}, false
	}

	st, ok := t.GetByUser(userID)
	if !ok || st.TaskID != taskID {
		return TaskStatus{}, false
	}
	return st, true
}

// GetByUser returns the user's current (or last terminal) run status.
func (t *TaskStatusTracker) GetByUser(userID uuid.UUID) (TaskStatus, bool) {
	us := t.userShard(userID)
	us.mu.RLock()
	defer us.mu.RUnlock()

	st, ok := us.m[userID]
	if !ok {
		return TaskStatus{}, false
	}
	return *st, true
}
