package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Repository defines memory and decision persistence operations.
type Repository interface {
	Insert(ctx context.Context, rec *MemoryRecord) error
	ListByType(ctx context.Context, agent string, userID uuid.UUID, memType Type, since time.Time, limit int) ([]MemoryRecord, error)
	ListRecent(ctx context.Context, userID uuid.UUID, agent string, types []Type, since time.Time, limit int) ([]MemoryRecord, error)
	SearchSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, limit int, threshold float64) ([]SearchResult, error)

	InsertDecision(ctx context.Context, dec *DecisionRecord) error
	ListDecisions(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]DecisionRecord, error)
	GetDecision(ctx context.Context, id, userID uuid.UUID) (*DecisionRecord, error)
	// UpdateDecisionOutcome fills outcome fields for a not-yet-evaluated
	// decision and reports how many rows changed (0 or 1).
	UpdateDecisionOutcome(ctx context.Context, id, userID uuid.UUID, metrics json.RawMessage, rating int, evaluatedAt time.Time) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the pgx-backed memory repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const memoryColumns = `id, user_id, agent_name, memory_type, content, metadata, created_at`

func (r *postgresRepository) Insert(ctx context.Context, rec *MemoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	metadata := rec.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	if len(rec.Embedding) > 0 {
		vec := pgvector.NewVector(rec.Embedding)
		_, err := r.pool.Exec(ctx,
			`INSERT INTO agent_memories (id, user_id, agent_name, memory_type, content, metadata, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, rec.UserID, rec.AgentName, rec.Type, rec.Content, metadata, vec, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting memory with embedding: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO agent_memories (id, user_id, agent_name, memory_type, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.AgentName, rec.Type, rec.Content, metadata, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting memory: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListByType(ctx context.Context, agent string, userID uuid.UUID, memType Type, since time.Time, limit int) ([]MemoryRecord, error) {
	// seq breaks ties between records written within the same timestamp so
	// retrieval order always matches append order.
	rows, err := r.pool.Query(ctx,
		`SELECT `+memoryColumns+`
		 FROM agent_memories
		 WHERE agent_name = $1 AND user_id = $2 AND memory_type = $3 AND created_at >= $4
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $5`,
		agent, userID, memType, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memories by type: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (r *postgresRepository) ListRecent(ctx context.Context, userID uuid.UUID, agent string, types []Type, since time.Time, limit int) ([]MemoryRecord, error) {
	conds := []string{"user_id = $1", "created_at >= $2"}
	args := []any{userID, since}

	if agent != "" {
		args = append(args, agent)
		conds = append(conds, fmt.Sprintf("agent_name = $%d", len(args)))
	}
	if len(types) > 0 {
		args = append(args, types)
		conds = append(conds, fmt.Sprintf("memory_type = ANY($%d)", len(args)))
	}
	args = append(args, limit)

	query := `SELECT ` + memoryColumns + `
		 FROM agent_memories
		 WHERE ` + strings.Join(conds, " AND ") + `
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $` + fmt.Sprint(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recent memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (r *postgresRepository) SearchSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, limit int, threshold float64) ([]SearchResult, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT `+memoryColumns+`, 1 - (embedding <=> $1) AS similarity
		 FROM agent_memories
		 WHERE user_id = $2
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, userID, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar memories: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var rec MemoryRecord
		var similarity float64
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.AgentName, &rec.Type,
			&rec.Content, &rec.Metadata, &rec.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, SearchResult{Record: rec, Similarity: similarity})
	}
	return results, rows.Err()
}

const decisionColumns = `id, user_id, decision_type, affected_item_ids, rationale, supporting_data, confidence, outcome_metrics, success_rating, decision_date, evaluated_at`

func (r *postgresRepository) InsertDecision(ctx context.Context, dec *DecisionRecord) error {
	if dec.ID == uuid.Nil {
		dec.ID = uuid.New()
	}
	supporting := dec.SupportingData
	if len(supporting) == 0 {
		supporting = json.RawMessage(`{}`)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO agent_decisions (id, user_id, decision_type, affected_item_ids, rationale, supporting_data, confidence, decision_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		dec.ID, dec.UserID, dec.DecisionType, dec.AffectedItemIDs,
		dec.Rationale, supporting, dec.Confidence, dec.DecisionDate,
	)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListDecisions(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]DecisionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+decisionColumns+`
		 FROM agent_decisions
		 WHERE user_id = $1 AND decision_date >= $2
		 ORDER BY decision_date DESC
		 LIMIT $3`,
		userID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close()

	var decisions []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(&d.ID, &d.UserID, &d.DecisionType, &d.AffectedItemIDs,
			&d.Rationale, &d.SupportingData, &d.Confidence,
			&d.OutcomeMetrics, &d.SuccessRating, &d.DecisionDate, &d.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

func (r *postgresRepository) GetDecision(ctx context.Context, id, userID uuid.UUID) (*DecisionRecord, error) {
	d := &DecisionRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+decisionColumns+` FROM agent_decisions WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&d.ID, &d.UserID, &d.DecisionType, &d.AffectedItemIDs,
		&d.Rationale, &d.SupportingData, &d.Confidence,
		&d.OutcomeMetrics, &d.SuccessRating, &d.DecisionDate, &d.EvaluatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying decision: %w", err)
	}
	return d, nil
}

func (r *postgresRepository) UpdateDecisionOutcome(ctx context.Context, id, userID uuid.UUID, metrics json.RawMessage, rating int, evaluatedAt time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_decisions
		 SET outcome_metrics = $3, success_rating = $4, evaluated_at = $5
		 WHERE id = $1 AND user_id = $2 AND evaluated_at IS NULL`,
		id, userID, metrics, rating, evaluatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("updating decision outcome: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMemories(rows pgx.Rows) ([]MemoryRecord, error) {
	var records []MemoryRecord
	for rows.Next() {
		var rec MemoryRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.AgentName, &rec.Type,
			&rec.Content, &rec.Metadata, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
