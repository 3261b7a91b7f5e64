package memory

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of fact a memory record carries. The set is closed:
// stages only produce these six.
type Type string

const (
	TypeDataQuality           Type = "data_quality"
	TypeMarketInsight         Type = "market_insight"
	TypePricingRecommendation Type = "pricing_recommendation"
	TypePerformanceBaseline   Type = "performance_baseline"
	TypePerformanceAnomaly    Type = "performance_anomaly"
	TypeExperimentLearning    Type = "experiment_learning"
)

// ParseType validates a memory type received from outside the process.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeDataQuality, TypeMarketInsight, TypePricingRecommendation,
		TypePerformanceBaseline, TypePerformanceAnomaly, TypeExperimentLearning:
		return Type(s), true
	}
	return "", false
}

// MemoryRecord is one immutable fact written by a pipeline stage. Records
// are pure appends: never updated or deleted by normal operation.
type MemoryRecord struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	AgentName string          `json:"agent_name"`
	Type      Type            `json:"memory_type"`
	Content   json.RawMessage `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Embedding []float32       `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// DecisionRecord is a pricing decision with its supporting evidence.
// Outcome fields stay null until the learn-outcome operation fills them,
// exactly once.
type DecisionRecord struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	DecisionType    string          `json:"decision_type"`
	AffectedItemIDs []int64         `json:"affected_item_ids"`
	Rationale       string          `json:"rationale"`
	SupportingData  json.RawMessage `json:"supporting_data,omitempty"`
	Confidence      float64         `json:"confidence"`
	OutcomeMetrics  json.RawMessage `json:"outcome_metrics,omitempty"`
	SuccessRating   *int            `json:"success_rating,omitempty"`
	DecisionDate    time.Time       `json:"decision_date"`
	EvaluatedAt     *time.Time      `json:"evaluated_at,omitempty"`
}

// SearchResult wraps a MemoryRecord with its similarity score.
type SearchResult struct {
	Record     MemoryRecord `json:"record"`
	Similarity float64      `json:"similarity"`
}

// RecordOutcomeRequest is the API body for recording a decision outcome.
type RecordOutcomeRequest struct {
	OutcomeMetrics json.RawMessage `json:"outcome_metrics" validate:"required"`
	SuccessRating  int             `json:"success_rating" validate:"required,min=1,max=5"`
}
