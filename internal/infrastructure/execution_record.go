package infrastructure

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"codex-pipeline/internal/domain"
)

// executionRecord is the bookkeeping snapshot saved before a run starts.
type executionRecord struct {
	RunID       string            `yaml:"run_id"`
	Time        string            `yaml:"time"`
	Arguments   map[string]string `yaml:"arguments"`
	Environment []string          `yaml:"environment"`
}

// RecordExecution saves the run's arguments and environment under the
// output directory and returns the path written.
func RecordExecution(outputDir string, args map[string]string) (string, error) {
	record := executionRecord{
		RunID:       uuid.NewString(),
		Time:        time.Now().Format(time.RFC3339),
		Arguments:   args,
		Environment: os.Environ(),
	}
	return writeRecord(filepath.Join(outputDir, "processor", "execution.yaml"), record)
}

// RecordMonitorData saves the run's aggregated monitor data under the
// output directory and returns the path written.
func RecordMonitorData(outputDir string, data domain.MonitorData) (string, error) {
	return writeRecord(filepath.Join(outputDir, "processor", "data.yaml"), data)
}

func writeRecord(path string, v any) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
