package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"codex-pipeline/internal/domain"
)

// DefaultConfigFilename is looked up when the config path is a directory.
const DefaultConfigFilename = "experiment.yaml"

type YAMLConfigReader struct {
	logger *zap.Logger
}

func NewYAMLConfigReader(logger *zap.Logger) *YAMLConfigReader {
	return &YAMLConfigReader{logger: logger}
}

// ReadConfig loads the experiment configuration from path, which may be a
// YAML file or a directory containing experiment.yaml.
func (r *YAMLConfigReader) ReadConfig(path string) (*domain.ExperimentConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		path = filepath.Join(path, DefaultConfigFilename)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config domain.ExperimentConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse experiment config %q: %w", path, err)
	}

	r.setDefaults(&config)

	if err := r.validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (r *YAMLConfigReader) setDefaults(config *domain.ExperimentConfig) {
	if config.NCycles == 0 {
		config.NCycles = 1
	}
	if config.NZPlanes == 0 {
		config.NZPlanes = 1
	}
	if config.NChannels == 0 {
		config.NChannels = 1
	}
}

func (r *YAMLConfigReader) validate(config *domain.ExperimentConfig) error {
	if len(config.RegionNames) == 0 {
		return domain.ConfigurationErrorf("experiment config declares no regions")
	}
	if config.RegionWidth < 1 || config.RegionHeight < 1 {
		return domain.ConfigurationErrorf("experiment config region grid %dx%d is invalid",
			config.RegionWidth, config.RegionHeight)
	}
	if config.TileWidth < 1 || config.TileHeight < 1 {
		return domain.ConfigurationErrorf("experiment config tile size %dx%d is invalid",
			config.TileWidth, config.TileHeight)
	}
	if config.TileOverlapX < 0 || config.TileOverlapY < 0 {
		return domain.ConfigurationErrorf("experiment config tile overlap %d/%d is invalid",
			config.TileOverlapX, config.TileOverlapY)
	}
	return nil
}
