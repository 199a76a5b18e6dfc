// Package testutils holds project fixtures shared by package tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/buttonstudio/internal/config"
)

// ModuleSource is written into every fixture file.
const ModuleSource = "export default function () {}\n"

// CreateTempProject creates a temporary project containing files, given as
// slash-separated paths relative to the project root.
func CreateTempProject(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	Touch(t, root, files...)
	return root
}

// Touch creates files under root, making parent directories as needed.
func Touch(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(ModuleSource), 0o644))
	}
}

// CreateTestConfig returns a configuration for root that binds an ephemeral
// loopback port and debounces quickly.
func CreateTestConfig(root string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
		},
		Project: config.ProjectConfig{
			Root:     root,
			Manifest: config.DefaultManifest,
		},
		Development: config.DevelopmentConfig{
			HotReload: true,
			Debounce:  20 * time.Millisecond,
		},
		Studio: config.StudioConfig{
			Title:        config.DefaultTitle,
			CounterStart: config.DefaultCounterStart,
		},
		Log: config.LogConfig{Level: "info", Format: "text"},
	}
}

// WaitForFile waits until path exists and cond accepts its contents.
func WaitForFile(t *testing.T, path string, timeout time.Duration, cond func([]byte) bool) []byte {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil && cond(data) {
			return data
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("File %s did not reach the expected state within %v", path, timeout)
	return nil
}
