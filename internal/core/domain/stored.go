package domain

import "time"

// StoredRun is a persisted transform run.
type StoredRun struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
}

// StoredRecord is a persisted record with its provenance.
type StoredRecord struct {
	ID           int64  `json:"id"`
	RunID        string `json:"run_id"`
	Pass         int    `json:"pass"`
	ObjectType   string `json:"object_type"`
	ObservableID string `json:"observable_id,omitempty"`
	IndicatorID  string `json:"indicator_id,omitempty"`
	// Fields is the flattened record (see Record.Flatten).
	Fields    map[string]string `json:"fields"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
