package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"greenwave/internal/models"
)

// PrepareJobDir creates the output directory for one job. An existing
// directory is an error: completed results are never overwritten.
func PrepareJobDir(resultsDir, jobName string) (string, error) {
	jobDir := filepath.Join(resultsDir, jobName)
	if _, err := os.Stat(jobDir); err == nil {
		return "", fmt.Errorf("job directory already exists: %s (will not overwrite existing results)", jobDir)
	}
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return "", fmt.Errorf("creating job directory: %w", err)
	}
	return jobDir, nil
}

// WriteJobConfig snapshots the configuration a job ran with.
func WriteJobConfig(jobDir string, cfg any) error {
	return writeJSON(filepath.Join(jobDir, "config.json"), cfg)
}

// RunDir returns the directory one run's files go to.
func RunDir(jobDir string, index int) string {
	return filepath.Join(jobDir, "runs", fmt.Sprintf("run-%03d", index))
}

// WriteRun writes one run's summary and metric records under the job
// directory.
func WriteRun(jobDir string, summary models.RunSummary, records []models.MetricRecord) error {
	dir := RunDir(jobDir, summary.RunIndex)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, "result.json"), summary); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "metrics.json"), records)
}

// WriteJobResult writes the aggregate outcome of a whole job.
func WriteJobResult(jobDir string, result *models.JobResult) error {
	return writeJSON(filepath.Join(jobDir, "result.json"), result)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
