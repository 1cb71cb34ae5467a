package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"
)

// RunConfig describes one offline evaluation: where the ground truth, the
// detections and the sectors live, where results go and the settings used.
type RunConfig struct {
	InputFiles  InputFiles  `mapstructure:"input_files"`
	OutputFiles OutputFiles `mapstructure:"output_files"`
	Settings    RunSettings `mapstructure:"settings"`
}

type InputFiles struct {
	GTSectors  []string `mapstructure:"gt_sectors"`
	GTTrees    []string `mapstructure:"gt_trees"`
	Detections []string `mapstructure:"detections"`
}

type OutputFiles struct {
	TaggedGTTrees    string `mapstructure:"tagged_gt_trees"`
	TaggedDetections string `mapstructure:"tagged_detections"`
	Metrics          string `mapstructure:"metrics"`
}

type RunSettings struct {
	GTSectorsBufferSizeInMeters float64 `mapstructure:"gt_sectors_buffer_size_in_meters"`
	ToleranceInMeters           float64 `mapstructure:"tolerance_in_meters"`
	Strategy                    string  `mapstructure:"strategy"`
}

// LoadRun reads a run file (YAML, JSON or TOML, by extension).
func LoadRun(path string) (*RunConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("settings.strategy", "grouped")
	v.SetDefault("settings.gt_sectors_buffer_size_in_meters", 0.0)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read run config %s: %w", path, err)
	}

	var rc RunConfig
	if err := v.Unmarshal(&rc); err != nil {
		return nil, fmt.Errorf("unmarshal run config: %w", err)
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return &rc, nil
}

// Validate checks that a run has inputs, outputs and usable settings.
func (rc *RunConfig) Validate() error {
	var errs []string

	if len(rc.InputFiles.GTTrees) == 0 {
		errs = append(errs, "input_files.gt_trees is required")
	}
	if len(rc.InputFiles.Detections) == 0 {
		errs = append(errs, "input_files.detections is required")
	}
	if rc.OutputFiles.Metrics == "" {
		errs = append(errs, "output_files.metrics is required")
	}
	if math.IsNaN(rc.Settings.ToleranceInMeters) || rc.Settings.ToleranceInMeters < 0 {
		errs = append(errs, fmt.Sprintf("settings.tolerance_in_meters must be >= 0, got %v", rc.Settings.ToleranceInMeters))
	}
	if rc.Settings.GTSectorsBufferSizeInMeters < 0 {
		errs = append(errs, "settings.gt_sectors_buffer_size_in_meters must be >= 0")
	}
	switch rc.Settings.Strategy {
	case "grouped", "nearest":
	default:
		errs = append(errs, fmt.Sprintf("settings.strategy must be grouped or nearest, got %q", rc.Settings.Strategy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("run config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
