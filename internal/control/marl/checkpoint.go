package marl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is the serialized learning state of every agent in a network,
// keyed by intersection id. Runs that share a checkpoint path learn across
// runs: each loads the previous policies and saves its own at the end.
type Checkpoint struct {
	SavedAt time.Time             `json:"saved_at"`
	Agents  map[string]AgentState `json:"agents"`
}

// AgentState is one agent's persisted policy.
type AgentState struct {
	Weights [][]float64 `json:"weights"`
	Epsilon float64     `json:"epsilon"`
	Steps   int64       `json:"steps"`
}

// LoadCheckpoint reads a checkpoint file. A missing file is not an error; it
// returns nil and the agents start fresh.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return &cp, nil
}

// Save writes the checkpoint as indented JSON, creating parent directories
// as needed.
func (c *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}
