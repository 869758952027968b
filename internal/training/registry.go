package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Adapter lifecycle stages tracked in the registry.
const (
	StageCandidate = "candidate"
	StageShadow    = "shadow"
	StageChampion  = "champion"
	StageRetired   = "retired"
)

// AdapterRecord is one persisted adapter metadata entry
type AdapterRecord struct {
	AgentID        string `json:"agent_id"`
	AdapterVersion string `json:"adapter_version"`
	DatasetVersion string `json:"dataset_version"`
	RunID          string `json:"run_id"`
	Stage          string `json:"stage"`
	CreatedAt      string `json:"created_at"`
}

// AdapterRegistry is an append-only JSON-array metadata ledger for
// trained adapters. Writes are atomic via temp-file rename and
// serialized by an in-process lock.
type AdapterRegistry struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewAdapterRegistry opens or initializes the registry file
func NewAdapterRegistry(path string) (*AdapterRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
			return nil, fmt.Errorf("failed to initialize registry: %w", err)
		}
	}
	return &AdapterRegistry{path: path, now: time.Now}, nil
}

// Register appends a new adapter metadata record
func (r *AdapterRegistry) Register(agentID, adapterVersion, datasetVersion, runID, stage string) (AdapterRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.readAll()
	if err != nil {
		return AdapterRecord{}, err
	}
	record := AdapterRecord{
		AgentID:        agentID,
		AdapterVersion: adapterVersion,
		DatasetVersion: datasetVersion,
		RunID:          runID,
		Stage:          stage,
		CreatedAt:      r.now().UTC().Format(time.RFC3339Nano),
	}
	records = append(records, record)
	if err := r.writeAll(records); err != nil {
		return AdapterRecord{}, err
	}
	return record, nil
}

// LatestForAgent returns the most recent record for the agent at the
// given stage, or nil when none exists.
func (r *AdapterRegistry) LatestForAgent(agentID, stage string) (*AdapterRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.readAll()
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].AgentID == agentID && records[i].Stage == stage {
			record := records[i]
			return &record, nil
		}
	}
	return nil, nil
}

// NextVersion returns the adapter version following the agent's latest
// champion record, bumping the semver patch component. Agents without
// a champion start at 0.1.0.
func (r *AdapterRegistry) NextVersion(agentID string) (string, error) {
	latest, err := r.LatestForAgent(agentID, StageChampion)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return "0.1.0", nil
	}
	current, err := semver.NewVersion(latest.AdapterVersion)
	if err != nil {
		return "", fmt.Errorf("invalid adapter version %q: %w", latest.AdapterVersion, err)
	}
	next := current.IncPatch()
	return next.String(), nil
}

func (r *AdapterRegistry) readAll() ([]AdapterRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	var records []AdapterRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return records, nil
}

func (r *AdapterRegistry) writeAll(records []AdapterRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	data = append(data, '\n')

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
