package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Data layout
	DataDir   string
	ModelsDir string

	// Model training table (YAML, optional)
	ModelConfigPath string

	// Retraining schedule (time of day, local clock)
	RetrainHour   int
	RetrainMinute int

	// Optional S3 mirror for committed model bundles
	MirrorBucket string

	// Vision-language model API
	GeminiAPIKey string

	// Logging mode: dev | prod
	LogMode string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		DatabaseURL:     getEnv("DATABASE_URL", "postgres://localhost/qc_inspector?sslmode=disable"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		DataDir:         getEnv("DATA_DIR", "data"),
		ModelsDir:       getEnv("MODELS_DIR", "models"),
		ModelConfigPath: getEnv("MODEL_CONFIG_PATH", "models.yaml"),
		RetrainHour:     getEnvInt("RETRAIN_HOUR", 2),
		RetrainMinute:   getEnvInt("RETRAIN_MINUTE", 0),
		MirrorBucket:    getEnv("MIRROR_BUCKET", ""),
		GeminiAPIKey:    getEnv("GOOGLE_API_KEY", ""),
		LogMode:         getEnv("LOG_MODE", "dev"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// ModelSettings holds per-model-type training defaults
type ModelSettings struct {
	Backbone     string  `yaml:"backbone"`
	MinSamples   int     `yaml:"min_samples"`
	GridSize     int     `yaml:"grid_size"`
	CoresetRatio float64 `yaml:"coreset_sampling_ratio"`
}

// ModelTable maps a model type key to its training settings
type ModelTable map[string]ModelSettings

// DefaultModelTable returns the built-in training defaults per model type
func DefaultModelTable() ModelTable {
	return ModelTable{
		"patchcore":   {Backbone: "resnet18", MinSamples: 10, GridSize: 32, CoresetRatio: 0.1},
		"padim":       {Backbone: "resnet18", MinSamples: 10, GridSize: 32},
		"efficientad": {MinSamples: 10, GridSize: 16},
	}
}

// LoadModelTable parses the YAML model table at path, merged over the built-in
// defaults. A missing file is not an error; the defaults are returned as-is.
func LoadModelTable(path string) (ModelTable, error) {
	table := DefaultModelTable()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, nil
		}
		return nil, err
	}

	var overrides ModelTable
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	for key, settings := range overrides {
		base := table[key]
		if settings.Backbone != "" {
			base.Backbone = settings.Backbone
		}
		if settings.MinSamples > 0 {
			base.MinSamples = settings.MinSamples
		}
		if settings.GridSize > 0 {
			base.GridSize = settings.GridSize
		}
		if settings.CoresetRatio > 0 {
			base.CoresetRatio = settings.CoresetRatio
		}
		table[key] = base
	}

	return table, nil
}

// For returns the settings for a model type key, falling back to the
// patchcore defaults for unknown keys.
func (t ModelTable) For(key string) ModelSettings {
	if s, ok := t[key]; ok {
		return s
	}
	return DefaultModelTable()["patchcore"]
}
