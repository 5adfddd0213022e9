package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Snapshot marks a completed ingestion. Its presence in the store means the
// key set is frozen.
type Snapshot struct {
	ID        uuid.UUID
	TakenAt   time.Time
	Source    string
	Records   int64
	Skipped   int64
	KeySuffix int
}

type snapshotJSON struct {
	ID        string `json:"id"`
	TakenAt   string `json:"taken_at"`
	Source    string `json:"source"`
	Records   int64  `json:"records"`
	Skipped   int64  `json:"skipped"`
	KeySuffix int    `json:"key_suffix"`
}

// NewSnapshot returns a snapshot with a fresh ID for the given source.
func NewSnapshot(source string, keySuffix int) *Snapshot {
	return &Snapshot{
		ID:        uuid.New(),
		TakenAt:   time.Now().UTC(),
		Source:    source,
		KeySuffix: keySuffix,
	}
}

// Ingested reports whether sn froze at least one record. A nil or empty
// snapshot leaves the store open to a later load.
func (sn *Snapshot) Ingested() bool {
	return sn != nil && sn.Records > 0
}

func (sn *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		ID:        sn.ID.String(),
		TakenAt:   sn.TakenAt.Format(time.RFC3339),
		Source:    sn.Source,
		Records:   sn.Records,
		Skipped:   sn.Skipped,
		KeySuffix: sn.KeySuffix,
	})
}

func (sn *Snapshot) UnmarshalJSON(data []byte) error {
	var snap snapshotJSON

	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("error unmarshalling snapshot: %w", err)
	}

	takenAt, err := time.Parse(time.RFC3339, snap.TakenAt)
	if err != nil {
		return fmt.Errorf("error parsing time: %w", err)
	}

	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return fmt.Errorf("error parsing snapshot ID: %w", err)
	}

	sn.ID = id
	sn.TakenAt = takenAt
	sn.Source = snap.Source
	sn.Records = snap.Records
	sn.Skipped = snap.Skipped
	sn.KeySuffix = snap.KeySuffix
	return nil
}
