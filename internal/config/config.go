// Package config handles repository configuration.
//
// A repository is a directory containing an .oncoscout/ subdirectory with a
// YAML configuration file, the embedded SQLite database, and the vector index
// cache. The configuration is loaded once at startup into an immutable
// Snapshot; components hold a reference to the snapshot and never reload it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	OncoscoutDir = ".oncoscout"
	ConfigFile   = "config.yml"
	DBFile       = "oncoscout.db"
	CacheDir     = "cache"
	EnvFile      = ".env"
)

// ValidDimensions are the supported embedding dimensions. The dimension is
// fixed at project initialization; changing it requires re-embedding every
// chunk.
var ValidDimensions = []int{768, 1024}

// Snapshot is the immutable process-wide configuration.
type Snapshot struct {
	// EmbeddingDimension is the deployment-wide vector dimension (768 or 1024).
	EmbeddingDimension int `yaml:"embedding_dimension"`

	// EmbeddingBatchSize is the number of texts embedded per request.
	EmbeddingBatchSize int `yaml:"embedding_batch_size"`

	// PipelineParallelism bounds the number of papers in flight at once.
	PipelineParallelism int `yaml:"pipeline_parallelism"`

	// RateLimits maps source name to requests per second.
	RateLimits map[string]float64 `yaml:"rate_limits"`

	// Sources lists the enabled discovery sources.
	Sources []string `yaml:"sources"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Feedback  FeedbackConfig  `yaml:"feedback"`

	// LLMMode governs narration routing for the external agent layer.
	// Recognized here only so the snapshot round-trips the full file.
	LLMMode string `yaml:"llm_mode"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// EvidenceConfig holds the curated evidence gateway settings.
type EvidenceConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ScoringConfig holds scoring engine overrides.
type ScoringConfig struct {
	// Weights overrides the default component weights by component name.
	// Overridden vectors are renormalized to sum to 1.0 before use.
	Weights map[string]float64 `yaml:"weights"`
}

// FeedbackConfig selects the target signal for weight-update correlation.
type FeedbackConfig struct {
	// TargetSignal is "recall_at_n" or "binding_affinity_r".
	TargetSignal string `yaml:"target_signal"`
}

// Default returns a snapshot with all defaults applied.
func Default() *Snapshot {
	return &Snapshot{
		EmbeddingDimension:  768,
		EmbeddingBatchSize:  32,
		PipelineParallelism: 4,
		RateLimits: map[string]float64{
			"pubmed":          3.0,
			"europepmc":       10.0,
			"biorxiv":         5.0,
			"crossref":        10.0,
			"semanticscholar": 1.0,
		},
		Sources: []string{"pubmed", "europepmc", "biorxiv", "crossref", "semanticscholar"},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		Feedback: FeedbackConfig{TargetSignal: "recall_at_n"},
		LLMMode:  "prefer_local",
	}
}

// RepoPath returns the path to the .oncoscout directory from a root path.
func RepoPath(root string) string {
	return filepath.Join(root, OncoscoutDir)
}

// ConfigPath returns the path to config.yml from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, OncoscoutDir, ConfigFile)
}

// DBPath returns the path to the SQLite database from a root path.
func DBPath(root string) string {
	return filepath.Join(root, OncoscoutDir, DBFile)
}

// CachePath returns the path to the cache directory from a root path.
func CachePath(root string) string {
	return filepath.Join(root, OncoscoutDir, CacheDir)
}

// IsRepository checks if the given path contains an oncoscout repository.
func IsRepository(root string) bool {
	info, err := os.Stat(RepoPath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a repository root.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in an oncoscout repository (no %s directory found)", OncoscoutDir)
		}
		abs = parent
	}
}

// Load reads configuration from the repository at the given root, applying
// defaults for anything the file leaves unset. Credentials in .env at the
// repository root are loaded into the process environment if present.
func Load(root string) (*Snapshot, error) {
	// Missing .env is fine; adapters that need keys fail on first use.
	_ = godotenv.Load(filepath.Join(root, EnvFile))

	cfg := Default()

	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the snapshot to the repository at the given root.
func (s *Snapshot) Save(root string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks the snapshot for invalid values.
func (s *Snapshot) Validate() error {
	valid := false
	for _, d := range ValidDimensions {
		if s.EmbeddingDimension == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid embedding_dimension %d (valid: %v)", s.EmbeddingDimension, ValidDimensions)
	}

	if s.EmbeddingBatchSize < 1 {
		return fmt.Errorf("embedding_batch_size must be >= 1, got %d", s.EmbeddingBatchSize)
	}
	if s.PipelineParallelism < 1 {
		return fmt.Errorf("pipeline_parallelism must be >= 1, got %d", s.PipelineParallelism)
	}

	for source, rps := range s.RateLimits {
		if rps <= 0 {
			return fmt.Errorf("rate_limits.%s must be positive, got %g", source, rps)
		}
	}

	switch s.Feedback.TargetSignal {
	case "", "recall_at_n", "binding_affinity_r":
	default:
		return fmt.Errorf("invalid feedback.target_signal %q", s.Feedback.TargetSignal)
	}

	return nil
}

// RateLimit returns the configured requests-per-second budget for a source,
// falling back to 1 rps for unknown sources.
func (s *Snapshot) RateLimit(source string) float64 {
	if rps, ok := s.RateLimits[source]; ok {
		return rps
	}
	return 1.0
}

// SourceEnabled reports whether a discovery source is enabled.
func (s *Snapshot) SourceEnabled(name string) bool {
	for _, src := range s.Sources {
		if src == name {
			return true
		}
	}
	return false
}

// Init creates the .oncoscout directory tree and writes the default config.
func Init(root string) (*Snapshot, error) {
	if IsRepository(root) {
		return nil, fmt.Errorf("repository already initialized at %s", RepoPath(root))
	}

	if err := os.MkdirAll(CachePath(root), 0755); err != nil {
		return nil, fmt.Errorf("creating repository directories: %w", err)
	}

	cfg := Default()
	if err := cfg.Save(root); err != nil {
		return nil, err
	}

	return cfg, nil
}
