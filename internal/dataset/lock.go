package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tradecrew/tradecrew/internal/models"
)

// HoldoutLock pins the identity of the test split forever. Once written
// it is never modified by later builds, so every future candidate is
// evaluated against the same holdout records.
type HoldoutLock struct {
	CreatedAt time.Time   `json:"created_at"`
	TestIDs   []uuid.UUID `json:"test_ids"`
}

func readHoldoutLock(path string) (*HoldoutLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read holdout lock: %w", err)
	}
	var lock HoldoutLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse holdout lock: %w", err)
	}
	return &lock, nil
}

func writeHoldoutLock(path string, testRecords []models.DecisionLogRecord) error {
	lock := HoldoutLock{
		CreatedAt: time.Now().UTC(),
		TestIDs:   make([]uuid.UUID, 0, len(testRecords)),
	}
	for _, record := range testRecords {
		lock.TestIDs = append(lock.TestIDs, record.ID)
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode holdout lock: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
