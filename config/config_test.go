package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":10020" {
		t.Fatalf("address = %s", cfg.Server.Address)
	}
	if cfg.Guardrail.ReviewThreshold != 0.6 || cfg.Guardrail.GroundingThreshold != 0.75 || cfg.Guardrail.HallucinationThreshold != 0.30 {
		t.Fatalf("unexpected guardrail defaults: %+v", cfg.Guardrail)
	}
	if cfg.Corpus.Dimensions != 1536 {
		t.Fatalf("corpus dimensions = %d", cfg.Corpus.Dimensions)
	}
	if cfg.Server.TokenTTL != 24*time.Hour {
		t.Fatalf("token ttl = %v", cfg.Server.TokenTTL)
	}
	if cfg.Audit.Backend != "file" {
		t.Fatalf("audit backend = %s", cfg.Audit.Backend)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CLINSIGHT_SERVER_ADDRESS", ":9999")
	t.Setenv("CLINSIGHT_GUARDRAIL_REVIEW_THRESHOLD", "0.8")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Fatalf("env override ignored: address = %s", cfg.Server.Address)
	}
	if cfg.Guardrail.ReviewThreshold != 0.8 {
		t.Fatalf("env override ignored: review threshold = %v", cfg.Guardrail.ReviewThreshold)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := []byte(`{"server":{"address":":8080"},"llm":{"languages":["hi","ta","bn"]}}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("address = %s", cfg.Server.Address)
	}
	if len(cfg.LLM.Languages) != 3 {
		t.Fatalf("languages = %v", cfg.LLM.Languages)
	}
	// Unset sections keep their defaults.
	if cfg.Guardrail.ReviewThreshold != 0.6 {
		t.Fatalf("review threshold = %v", cfg.Guardrail.ReviewThreshold)
	}
}

func TestLoadConfigRejectsBadThresholds(t *testing.T) {
	// Zero is rejected along with out-of-range values: it would disable the
	// review rule entirely.
	for _, bad := range []string{"1.5", "0", "-0.2"} {
		t.Setenv("CLINSIGHT_GUARDRAIL_REVIEW_THRESHOLD", bad)
		if _, err := LoadConfig(""); err == nil {
			t.Fatalf("review_threshold=%s: expected validation error", bad)
		}
	}
	t.Setenv("CLINSIGHT_GUARDRAIL_REVIEW_THRESHOLD", "0.6")

	for _, bad := range []string{"0", "1"} {
		t.Setenv("CLINSIGHT_GUARDRAIL_HALLUCINATION_THRESHOLD", bad)
		if _, err := LoadConfig(""); err == nil {
			t.Fatalf("hallucination_threshold=%s: expected validation error", bad)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{URL: "postgres://u:p@h:5432/db?sslmode=disable"}
	if p.DSN() != p.URL {
		t.Fatalf("explicit URL must win")
	}

	p = PostgresConfig{Host: "localhost", User: "u", Password: "p", DBName: "db"}
	want := "postgres://u:p@localhost:5432/db?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("dsn = %s, want %s", got, want)
	}
}
