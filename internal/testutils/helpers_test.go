package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTempProject(t *testing.T) {
	root := CreateTempProject(t, "routes/index.tsx", "islands/Counter.tsx")

	data, err := os.ReadFile(filepath.Join(root, "routes", "index.tsx"))
	require.NoError(t, err)
	assert.Equal(t, ModuleSource, string(data))
	assert.FileExists(t, filepath.Join(root, "islands", "Counter.tsx"))
}

func TestCreateTestConfig(t *testing.T) {
	cfg := CreateTestConfig("/tmp/project")
	assert.Equal(t, "/tmp/project", cfg.Project.Root)
	assert.Zero(t, cfg.Server.Port)
	assert.True(t, cfg.Development.HotReload)
}

func TestWaitForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(path, []byte("ready"), 0o644)
	}()

	data := WaitForFile(t, path, 2*time.Second, func(b []byte) bool {
		return strings.Contains(string(b), "ready")
	})
	assert.Equal(t, "ready", string(data))
}
