package env

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/subosito/gotenv"
)

// Load reads KEY=VALUE pairs from the given dotenv files into the process
// environment. Missing files are skipped; variables already set win.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := gotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// Get returns the environment variable for key or defaultValue when unset or empty.
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetInt parses key as an integer, falling back to defaultValue when unset or invalid.
func GetInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(Get(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// GetBool parses key with strconv.ParseBool.
func GetBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(Get(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// GetDuration accepts Go duration strings ("30s") or a bare number of seconds.
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
