package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetters(t *testing.T) {
	t.Setenv("ENV_TEST_INT", "42")
	t.Setenv("ENV_TEST_BAD_INT", "forty")
	t.Setenv("ENV_TEST_BOOL", "true")
	t.Setenv("ENV_TEST_DUR", "90s")
	t.Setenv("ENV_TEST_SECS", "15")

	if got := GetInt("ENV_TEST_INT", 1); got != 42 {
		t.Errorf("GetInt = %d, want 42", got)
	}
	if got := GetInt("ENV_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("GetInt fallback = %d, want 7", got)
	}
	if !GetBool("ENV_TEST_BOOL", false) {
		t.Error("GetBool = false, want true")
	}
	if got := GetDuration("ENV_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("GetDuration = %v, want 90s", got)
	}
	if got := GetDuration("ENV_TEST_SECS", time.Second); got != 15*time.Second {
		t.Errorf("GetDuration seconds = %v, want 15s", got)
	}
	if got := Get("ENV_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("Get = %q, want fallback", got)
	}
}

func TestLoadSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("ENV_TEST_FROM_FILE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("ENV_TEST_FROM_FILE") })

	if err := Load(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("ENV_TEST_FROM_FILE"); got != "loaded" {
		t.Errorf("ENV_TEST_FROM_FILE = %q, want loaded", got)
	}
}
