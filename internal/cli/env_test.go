package cli

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvLoader_LoadsFlagPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.env")
	if err := os.WriteFile(path, []byte("CHUNK_SIZE=1234\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("EVENT_PIPELINE_ENV_FILE", "")
	t.Setenv("HORSE_ENV_FILE", "")
	t.Setenv("CHUNK_SIZE", "1")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := AddEnvFlag(fs, ".env", "")
	if err := fs.Parse([]string{"--env", path}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	loaded, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != path {
		t.Fatalf("unexpected loaded path: %q", loaded)
	}
	if got := os.Getenv("CHUNK_SIZE"); got != "1234" {
		t.Fatalf("expected env file to override process value, got %q", got)
	}
}

func TestEnvLoader_OverrideVariableWins(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "override.env")
	if err := os.WriteFile(override, []byte("MERGE_MAX_DAYS_APART=7\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("EVENT_PIPELINE_ENV_FILE", override)
	t.Setenv("MERGE_MAX_DAYS_APART", "")

	loader := AddEnvFlag(flag.NewFlagSet("test", flag.ContinueOnError), filepath.Join(dir, "missing.env"), "")
	loaded, err := loader.Load()
	if err != nil || loaded != override {
		t.Fatalf("expected override file, got %q err=%v", loaded, err)
	}
}

func TestEnvLoader_Missing(t *testing.T) {
	t.Setenv("EVENT_PIPELINE_ENV_FILE", "")
	t.Setenv("HORSE_ENV_FILE", "")

	loader := AddEnvFlag(flag.NewFlagSet("test", flag.ContinueOnError), filepath.Join(t.TempDir(), "nope.env"), "")
	if _, err := loader.Load(); err == nil {
		t.Fatalf("expected missing env file error")
	}
}
