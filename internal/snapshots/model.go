// Package snapshots persists the intermediate artifacts of a pricing run:
// per-phase analysis snapshots and detected performance anomalies. Both
// tables are append-only.
package snapshots

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/analytics"
)

// Kind identifies which phase wrote a snapshot.
type Kind string

const (
	KindDataCollection      Kind = "data_collection"
	KindMarketAnalysis      Kind = "market_analysis"
	KindPerformanceBaseline Kind = "performance_baseline"
)

// Snapshot is one immutable phase output. Payload shape depends on Kind.
type Snapshot struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New builds a snapshot around any JSON-marshalable payload.
func New(userID uuid.UUID, kind Kind, payload any) (*Snapshot, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s snapshot: %w", kind, err)
	}
	return &Snapshot{
		ID:      uuid.New(),
		UserID:  userID,
		Kind:    kind,
		Payload: raw,
	}, nil
}

// AnomalyRecord is a stored performance anomaly. ItemID is nil for
// revenue-level anomalies.
type AnomalyRecord struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	AnomalyType string         `json:"anomaly_type"`
	ItemID      *int64         `json:"item_id,omitempty"`
	Metric      string         `json:"metric"`
	Expected    analytics.Band `json:"expected"`
	Actual      float64        `json:"actual"`
	Severity    string         `json:"severity"`
	DetectedAt  time.Time      `json:"detected_at"`
}

// NewAnomalyRecord binds a detected anomaly to a user for storage.
func NewAnomalyRecord(userID uuid.UUID, a analytics.Anomaly) AnomalyRecord {
	rec := AnomalyRecord{
		ID:          uuid.New(),
		UserID:      userID,
		AnomalyType: a.Type,
		Metric:      a.Metric,
		Expected:    a.Expected,
		Actual:      a.Actual,
		Severity:    a.Severity,
		DetectedAt:  a.DetectedAt,
	}
	if a.ItemID != 0 {
		itemID := a.ItemID
		rec.ItemID = &itemID
	}
	return rec
}

// Anomaly converts the stored record back to its analytics form, as needed
// when classifying a fresh candidate against history.
func (r AnomalyRecord) Anomaly() analytics.Anomaly {
	a := analytics.Anomaly{
		Type:       r.AnomalyType,
		Metric:     r.Metric,
		Expected:   r.Expected,
		Actual:     r.Actual,
		Severity:   r.Severity,
		DetectedAt: r.DetectedAt,
	}
	if r.ItemID != nil {
		a.ItemID = *r.ItemID
	}
	return a
}
