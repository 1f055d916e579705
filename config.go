package lightbake

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults. They are tunable starting points, not fixed semantics.
const (
	DefaultClusteringRadiusScale  = 1.0
	DefaultMinVisibleFraction     = 0.5
	DefaultLUTSampleCount         = 64
	DefaultNegligibilityThreshold = 0.01
	DefaultMaxClusters            = 256
	DefaultReferenceDistance      = 100.0 // legacy tools quote falloff at 100 units
	DefaultFalloffEpsilon         = 1e-4
	DefaultAreaEpsilon            = 1e-3
	DefaultPeakOutput             = 1.0
	DefaultHDROverbright          = 16.0
	DefaultMinEffectiveRadius     = 1.0
	DefaultMaxEffectiveRadius     = 65000.0
	DefaultScoreSampleCount       = 32
	DefaultBatchSize              = 256

	// MinAreaDimension is the hard floor under which an area emitter
	// cannot be represented, even after epsilon clamping.
	MinAreaDimension = 1e-9
)

type Config struct {
	ClusteringRadiusScale  float64 `yaml:"clustering_radius_scale"`
	MinVisibleFraction     float64 `yaml:"min_visible_fraction"`
	LUTSampleCount         int     `yaml:"lut_sample_count"`
	NegligibilityThreshold float64 `yaml:"negligibility_threshold"`
	MaxClusters            int     `yaml:"max_clusters"`

	ReferenceDistance  float64 `yaml:"reference_distance"`
	FalloffEpsilon     float64 `yaml:"falloff_epsilon"`
	AreaEpsilon        float64 `yaml:"area_epsilon"`
	PeakOutput         float64 `yaml:"peak_output"`
	HDROverbright      float64 `yaml:"hdr_overbright"`
	MinEffectiveRadius float64 `yaml:"min_effective_radius"`
	MaxEffectiveRadius float64 `yaml:"max_effective_radius"`
	ScoreSampleCount   int     `yaml:"score_sample_count"`
	GridCellSize       float64 `yaml:"grid_cell_size,omitempty"` // 0 = derived from light reaches

	Workers   int `yaml:"workers,omitempty"` // 0 = runtime.NumCPU()
	BatchSize int `yaml:"batch_size"`
}

func DefaultConfig() Config {
	return Config{
		ClusteringRadiusScale:  DefaultClusteringRadiusScale,
		MinVisibleFraction:     DefaultMinVisibleFraction,
		LUTSampleCount:         DefaultLUTSampleCount,
		NegligibilityThreshold: DefaultNegligibilityThreshold,
		MaxClusters:            DefaultMaxClusters,
		ReferenceDistance:      DefaultReferenceDistance,
		FalloffEpsilon:         DefaultFalloffEpsilon,
		AreaEpsilon:            DefaultAreaEpsilon,
		PeakOutput:             DefaultPeakOutput,
		HDROverbright:          DefaultHDROverbright,
		MinEffectiveRadius:     DefaultMinEffectiveRadius,
		MaxEffectiveRadius:     DefaultMaxEffectiveRadius,
		ScoreSampleCount:       DefaultScoreSampleCount,
		BatchSize:              DefaultBatchSize,
	}
}

func (c Config) Validate() error {
	var errs []error
	if !(c.ClusteringRadiusScale >= 0) {
		errs = append(errs, fmt.Errorf("clustering_radius_scale must be >= 0, got %g", c.ClusteringRadiusScale))
	}
	if !(c.MinVisibleFraction >= 0 && c.MinVisibleFraction <= 1) {
		errs = append(errs, fmt.Errorf("min_visible_fraction must be in [0,1], got %g", c.MinVisibleFraction))
	}
	if c.LUTSampleCount < 2 {
		errs = append(errs, fmt.Errorf("lut_sample_count must be >= 2, got %d", c.LUTSampleCount))
	}
	if !(c.NegligibilityThreshold > 0 && c.NegligibilityThreshold < 1) {
		errs = append(errs, fmt.Errorf("negligibility_threshold must be in (0,1), got %g", c.NegligibilityThreshold))
	}
	if c.MaxClusters < 1 {
		errs = append(errs, fmt.Errorf("max_clusters must be >= 1, got %d", c.MaxClusters))
	}
	if !(c.ReferenceDistance > 0) {
		errs = append(errs, fmt.Errorf("reference_distance must be > 0, got %g", c.ReferenceDistance))
	}
	if !(c.FalloffEpsilon > 0) {
		errs = append(errs, fmt.Errorf("falloff_epsilon must be > 0, got %g", c.FalloffEpsilon))
	}
	if !(c.AreaEpsilon >= 0) {
		errs = append(errs, fmt.Errorf("area_epsilon must be >= 0, got %g", c.AreaEpsilon))
	}
	if !(c.PeakOutput > 0) || !(c.HDROverbright > 0) {
		errs = append(errs, fmt.Errorf("peak_output and hdr_overbright must be > 0"))
	}
	if !(c.MinEffectiveRadius > 0) || !(c.MaxEffectiveRadius >= c.MinEffectiveRadius) {
		errs = append(errs, fmt.Errorf("effective radius bounds invalid: [%g, %g]", c.MinEffectiveRadius, c.MaxEffectiveRadius))
	}
	if c.ScoreSampleCount < 2 {
		errs = append(errs, fmt.Errorf("score_sample_count must be >= 2, got %d", c.ScoreSampleCount))
	}
	if c.GridCellSize < 0 || c.Workers < 0 || c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("grid_cell_size, workers must be >= 0 and batch_size >= 1"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML config on top of DefaultConfig. A missing file is
// not an error; the defaults are returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
