package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Default retrieval bounds applied when callers pass zero values.
const (
	DefaultDaysBack = 30
	DefaultLimit    = 20
)

// Store is the append-only memory log shared by all pipeline stages. Every
// write goes through Save or RecordDecision; nothing is ever updated in place
// except a decision's one-time outcome.
type Store struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a memory store backed by the given repository.
func NewStore(repo Repository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Save appends one memory record. Content may be any JSON-marshalable value;
// marshal and persistence failures both surface as a *PersistenceError so
// callers can treat the store as a single failure domain.
func (s *Store) Save(ctx context.Context, agent string, userID uuid.UUID, memType Type, content any, metadata map[string]any) (*MemoryRecord, error) {
	return s.save(ctx, agent, userID, memType, content, nil, metadata)
}

// SaveEmbedded appends one memory record together with its embedding vector,
// making it reachable through SearchSimilar.
func (s *Store) SaveEmbedded(ctx context.Context, agent string, userID uuid.UUID, memType Type, content any, embedding []float32, metadata map[string]any) (*MemoryRecord, error) {
	return s.save(ctx, agent, userID, memType, content, embedding, metadata)
}

func (s *Store) save(ctx context.Context, agent string, userID uuid.UUID, memType Type, content any, embedding []float32, metadata map[string]any) (*MemoryRecord, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, &PersistenceError{Op: "marshal", Err: err}
	}

	rec := &MemoryRecord{
		UserID:    userID,
		AgentName: agent,
		Type:      memType,
		Content:   raw,
		Embedding: embedding,
		CreatedAt: s.now().UTC(),
	}
	if metadata != nil {
		metaRaw, err := json.Marshal(metadata)
		if err != nil {
			return nil, &PersistenceError{Op: "marshal", Err: err}
		}
		rec.Metadata = metaRaw
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, &PersistenceError{Op: "save", Err: err}
	}

	s.logger.Debug("memory saved",
		"agent", agent,
		"user_id", userID,
		"type", memType)
	return rec, nil
}

// Retrieve returns recent memories for one agent grouped by type, newest
// first within each type. The result always carries an entry for every
// requested type; a type with no matches maps to an empty slice.
func (s *Store) Retrieve(ctx context.Context, agent string, userID uuid.UUID, types []Type, daysBack, limit int) (map[Type][]MemoryRecord, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	since := s.now().UTC().AddDate(0, 0, -daysBack)

	out := make(map[Type][]MemoryRecord, len(types))
	for _, t := range types {
		records, err := s.repo.ListByType(ctx, agent, userID, t, since, limit)
		if err != nil {
			return nil, &PersistenceError{Op: "retrieve", Err: fmt.Errorf("type %s: %w", t, err)}
		}
		if records == nil {
			records = []MemoryRecord{}
		}
		out[t] = records
	}
	return out, nil
}

// RetrieveRecent returns memories for a user across agents and types, newest
// first. An empty agent or types filter matches everything.
func (s *Store) RetrieveRecent(ctx context.Context, userID uuid.UUID, agent string, types []Type, daysBack, limit int) ([]MemoryRecord, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	since := s.now().UTC().AddDate(0, 0, -daysBack)

	records, err := s.repo.ListRecent(ctx, userID, agent, types, since, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "retrieve", Err: err}
	}
	if records == nil {
		records = []MemoryRecord{}
	}
	return records, nil
}

// SearchSimilar finds memories whose embeddings are close to the query
// vector, scoped to one user. Results arrive most similar first.
func (s *Store) SearchSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, limit int, threshold float64) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	results, err := s.repo.SearchSimilar(ctx, userID, embedding, limit, threshold)
	if err != nil {
		return nil, &PersistenceError{Op: "search", Err: err}
	}
	return results, nil
}

// RecordDecision appends one decision record, assigning its ID and decision
// date when unset.
func (s *Store) RecordDecision(ctx context.Context, dec *DecisionRecord) error {
	if dec.ID == uuid.Nil {
		dec.ID = uuid.New()
	}
	if dec.DecisionDate.IsZero() {
		dec.DecisionDate = s.now().UTC()
	}
	if err := s.repo.InsertDecision(ctx, dec); err != nil {
		return &PersistenceError{Op: "record_decision", Err: err}
	}

	s.logger.Info("decision recorded",
		"decision_id", dec.ID,
		"user_id", dec.UserID,
		"type", dec.DecisionType,
		"items", len(dec.AffectedItemIDs))
	return nil
}

// RetrieveDecisions returns a user's decisions newest first.
func (s *Store) RetrieveDecisions(ctx context.Context, userID uuid.UUID, daysBack, limit int) ([]DecisionRecord, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	since := s.now().UTC().AddDate(0, 0, -daysBack)

	decisions, err := s.repo.ListDecisions(ctx, userID, since, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "retrieve_decisions", Err: err}
	}
	if decisions == nil {
		decisions = []DecisionRecord{}
	}
	return decisions, nil
}

// GetDecision returns one decision, or (nil, nil) when it does not exist.
func (s *Store) GetDecision(ctx context.Context, id, userID uuid.UUID) (*DecisionRecord, error) {
	dec, err := s.repo.GetDecision(ctx, id, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "get_decision", Err: err}
	}
	return dec, nil
}

// LearnOutcome attaches observed results to a decision exactly once. A second
// evaluation attempt returns ErrAlreadyEvaluated; an unknown decision returns
// ErrDecisionNotFound.
func (s *Store) LearnOutcome(ctx context.Context, id, userID uuid.UUID, outcomeMetrics json.RawMessage, successRating int) error {
	if successRating < 1 || successRating > 5 {
		return fmt.Errorf("success rating must be between 1 and 5, got %d", successRating)
	}

	rows, err := s.repo.UpdateDecisionOutcome(ctx, id, userID, outcomeMetrics, successRating, s.now().UTC())
	if err != nil {
		return &PersistenceError{Op: "learn_outcome", Err: err}
	}
	if rows == 0 {
		dec, err := s.repo.GetDecision(ctx, id, userID)
		if err != nil {
			return &PersistenceError{Op: "learn_outcome", Err: err}
		}
		if dec == nil {
			return ErrDecisionNotFound
		}
		return ErrAlreadyEvaluated
	}

	s.logger.Info("decision outcome recorded",
		"decision_id", id,
		"user_id", userID,
		"rating", successRating)
	return nil
}
