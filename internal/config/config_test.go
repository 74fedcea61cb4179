package config

import (
	"reflect"
	"testing"
)

func validConfig() *Config {
	return &Config{
		CandidateSource:    "pgvector",
		LLMBackend:         "ollama",
		DefaultLambda:      0.5,
		DefaultCandidates:  80,
		DefaultTopK:        12,
		DefaultPerGroupCap: 2,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"lambda below range", func(c *Config) { c.DefaultLambda = -0.2 }},
		{"lambda above range", func(c *Config) { c.DefaultLambda = 1.5 }},
		{"negative cap", func(c *Config) { c.DefaultPerGroupCap = -1 }},
		{"negative pool", func(c *Config) { c.DefaultCandidates = -10 }},
		{"negative probes", func(c *Config) { c.IVFProbes = -1 }},
		{"unknown source", func(c *Config) { c.CandidateSource = "chroma" }},
		{"unknown backend", func(c *Config) { c.LLMBackend = "claude" }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestKinds_SplitsAndTrims(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultKinds = " table, column ,,info "

	got := cfg.Kinds()
	want := []string{"table", "column", "info"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Kinds() = %v, want %v", got, want)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DefaultTopK != 12 {
		t.Errorf("expected default TopK 12, got %d", cfg.DefaultTopK)
	}
	if cfg.DefaultLambda != 0.5 {
		t.Errorf("expected default lambda 0.5, got %g", cfg.DefaultLambda)
	}
	if cfg.CandidateSource != "pgvector" {
		t.Errorf("expected default source pgvector, got %s", cfg.CandidateSource)
	}
}
