package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr bool
	}{
		{
			name:   "valid defaults",
			mutate: func(s *Snapshot) {},
		},
		{
			name:   "1024 dimension allowed",
			mutate: func(s *Snapshot) { s.EmbeddingDimension = 1024 },
		},
		{
			name:    "unsupported dimension",
			mutate:  func(s *Snapshot) { s.EmbeddingDimension = 512 },
			wantErr: true,
		},
		{
			name:    "zero batch size",
			mutate:  func(s *Snapshot) { s.EmbeddingBatchSize = 0 },
			wantErr: true,
		},
		{
			name:    "zero parallelism",
			mutate:  func(s *Snapshot) { s.PipelineParallelism = 0 },
			wantErr: true,
		},
		{
			name:    "negative rate limit",
			mutate:  func(s *Snapshot) { s.RateLimits["pubmed"] = -1 },
			wantErr: true,
		},
		{
			name:    "unknown feedback signal",
			mutate:  func(s *Snapshot) { s.Feedback.TargetSignal = "vibes" },
			wantErr: true,
		},
		{
			name:   "binding affinity signal allowed",
			mutate: func(s *Snapshot) { s.Feedback.TargetSignal = "binding_affinity_r" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInitAndLoad(t *testing.T) {
	root := t.TempDir()

	cfg, err := Init(root)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if cfg.EmbeddingDimension != 768 {
		t.Errorf("expected default dimension 768, got %d", cfg.EmbeddingDimension)
	}

	if !IsRepository(root) {
		t.Error("Init should create a repository")
	}

	// Double-init is an error.
	if _, err := Init(root); err == nil {
		t.Error("second Init should fail")
	}

	loaded, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Embedding.Model != cfg.Embedding.Model {
		t.Errorf("round-trip model mismatch: %q != %q", loaded.Embedding.Model, cfg.Embedding.Model)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(root); err != nil {
		t.Fatalf("Init: %v", err)
	}

	override := `
embedding_dimension: 1024
pipeline_parallelism: 8
rate_limits:
  pubmed: 2.5
scoring:
  weights:
    mutation_freq: 0.5
`
	if err := os.WriteFile(ConfigPath(root), []byte(override), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EmbeddingDimension != 1024 {
		t.Errorf("expected dimension 1024, got %d", cfg.EmbeddingDimension)
	}
	if cfg.PipelineParallelism != 8 {
		t.Errorf("expected parallelism 8, got %d", cfg.PipelineParallelism)
	}
	if got := cfg.RateLimit("pubmed"); got != 2.5 {
		t.Errorf("expected pubmed rate 2.5, got %g", got)
	}
	if got := cfg.Scoring.Weights["mutation_freq"]; got != 0.5 {
		t.Errorf("expected weight override 0.5, got %g", got)
	}
	// Unknown source falls back to 1 rps.
	if got := cfg.RateLimit("nosuch"); got != 1.0 {
		t.Errorf("expected fallback rate 1.0, got %g", got)
	}
}

func TestLoadMissingConfigUsesDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load without config file: %v", err)
	}
	if cfg.EmbeddingBatchSize != 32 {
		t.Errorf("expected default batch size 32, got %d", cfg.EmbeddingBatchSize)
	}
}

func TestFindRepository(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(root); err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	found, err := FindRepository(nested)
	if err != nil {
		t.Fatalf("FindRepository: %v", err)
	}
	// Resolve symlinks on both sides; t.TempDir may live under a symlink.
	want, _ := filepath.EvalSymlinks(root)
	got, _ := filepath.EvalSymlinks(found)
	if got != want {
		t.Errorf("FindRepository = %s, want %s", got, want)
	}

	if _, err := FindRepository(os.TempDir()); err == nil {
		t.Error("FindRepository outside a repo should fail")
	}
}

func TestSourceEnabled(t *testing.T) {
	cfg := Default()
	if !cfg.SourceEnabled("pubmed") {
		t.Error("pubmed should be enabled by default")
	}
	if cfg.SourceEnabled("scihub") {
		t.Error("unknown source should not be enabled")
	}
}
