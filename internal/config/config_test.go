package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/annotate/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.VLM.Timeout != 30*time.Minute {
		t.Errorf("vlm.timeout = %s, want 30m", cfg.VLM.Timeout)
	}
	if cfg.VLM.BaseURL != "http://localhost:11434" {
		t.Errorf("vlm.base_url = %q", cfg.VLM.BaseURL)
	}
	if got := cfg.Annotate.CheckpointPath(); got != filepath.Join("data", "image_annotations.csv") {
		t.Errorf("CheckpointPath() = %q", got)
	}

	set := cfg.Annotate.PromptSet()
	want := []domain.Kind{domain.KindAlt, domain.KindDescription}
	got := set.Enabled()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("enabled kinds = %v, want %v", got, want)
	}
	if err := cfg.Annotate.Validate(true); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadPromptOverrides(t *testing.T) {
	path := writeConfig(t, `
annotate:
  size: small
  prompts:
    alt: "true"
    title: "Suggest a short title."
`)
	t.Setenv("ANNOTATE_PROMPTS_CAPTION", "Write a caption.")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	set := cfg.Annotate.PromptSet()
	if set.For(domain.KindAlt).Enabled() {
		t.Error("alt set to true should be disabled")
	}
	if got := set.For(domain.KindTitle).Text(); got != "Suggest a short title." {
		t.Errorf("title prompt = %q", got)
	}
	if got := set.For(domain.KindCaption).Text(); got != "Write a caption." {
		t.Errorf("caption prompt from env = %q", got)
	}
	if cfg.Annotate.Size != "small" {
		t.Errorf("size = %q, want small", cfg.Annotate.Size)
	}
}

func TestAnnotateValidate(t *testing.T) {
	base := AnnotateConfig{OutputDir: "out", CheckpointFile: "c.csv", Size: "large"}

	cases := []struct {
		name           string
		mutate         func(c *AnnotateConfig)
		requirePrompts bool
		wantErr        bool
	}{
		{name: "all disabled for commit", requirePrompts: false, wantErr: false},
		{name: "all disabled for generate", requirePrompts: true, wantErr: true},
		{
			name:           "one prompt for generate",
			mutate:         func(c *AnnotateConfig) { c.Prompts.Caption = "caption it" },
			requirePrompts: true,
		},
		{
			name:    "unknown size",
			mutate:  func(c *AnnotateConfig) { c.Size = "huge" },
			wantErr: true,
		},
		{
			name:    "missing output dir",
			mutate:  func(c *AnnotateConfig) { c.OutputDir = "" },
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			if tc.mutate != nil {
				tc.mutate(&c)
			}
			err := c.Validate(tc.requirePrompts)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/media.db"}
	if sqlite.DSN() != "./data/media.db" {
		t.Errorf("sqlite DSN = %q", sqlite.DSN())
	}

	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "media", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=media sslmode=disable"
	if pg.DSN() != want {
		t.Errorf("postgres DSN = %q, want %q", pg.DSN(), want)
	}
}
