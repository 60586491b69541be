package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFile_LoadsValuesAndPreservesExisting(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, ".env")
	content := "" +
		"# comment\n" +
		"MIDAS_DOTENV_FROM_FILE=loaded\n" +
		"MIDAS_DOTENV_QUOTED=\"hello world\"\n" +
		"export MIDAS_DOTENV_EXPORTED=ok\n" +
		"MIDAS_DOTENV_EXISTING=from_file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	for _, key := range []string{"MIDAS_DOTENV_FROM_FILE", "MIDAS_DOTENV_QUOTED", "MIDAS_DOTENV_EXPORTED"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	t.Setenv("MIDAS_DOTENV_EXISTING", "already_set")

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if got := os.Getenv("MIDAS_DOTENV_FROM_FILE"); got != "loaded" {
		t.Fatalf("MIDAS_DOTENV_FROM_FILE=%q, want %q", got, "loaded")
	}
	if got := os.Getenv("MIDAS_DOTENV_QUOTED"); got != "hello world" {
		t.Fatalf("MIDAS_DOTENV_QUOTED=%q, want %q", got, "hello world")
	}
	if got := os.Getenv("MIDAS_DOTENV_EXPORTED"); got != "ok" {
		t.Fatalf("MIDAS_DOTENV_EXPORTED=%q, want %q", got, "ok")
	}
	if got := os.Getenv("MIDAS_DOTENV_EXISTING"); got != "already_set" {
		t.Fatalf("MIDAS_DOTENV_EXISTING=%q, want existing value preserved", got)
	}
}
