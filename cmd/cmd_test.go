package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/buttonstudio/internal/accessibility"
	"github.com/conneroisu/buttonstudio/internal/config"
	"github.com/conneroisu/buttonstudio/internal/manifest"
	"github.com/conneroisu/buttonstudio/internal/testutils"
	"github.com/conneroisu/buttonstudio/internal/version"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// resetFlags restores every flag to its default so runs do not leak into
// each other through the package-level commands.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestManifestCommand(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx", "routes/blog/[slug].tsx", "islands/Counter.tsx")

	out, err := execute(t, "manifest", root)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote fresh.gen.ts (2 routes, 1 islands)")

	data, err := os.ReadFile(filepath.Join(root, "fresh.gen.ts"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `import * as $index from "./routes/index.tsx";`)
	assert.Contains(t, string(data), `"./islands/Counter.tsx": $Counter,`)

	out, err = execute(t, "manifest", root)
	require.NoError(t, err)
	assert.Contains(t, out, "fresh.gen.ts unchanged")
}

func TestManifestCheck(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx")

	out, err := execute(t, "manifest", "--check", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of date")
	assert.Contains(t, out, "buttonstudio manifest", "suggests the fix")
	assert.NoFileExists(t, filepath.Join(root, "fresh.gen.ts"))

	_, err = execute(t, "manifest", root)
	require.NoError(t, err)

	out, err = execute(t, "manifest", "--check", root)
	require.NoError(t, err)
	assert.Contains(t, out, "fresh.gen.ts is up to date")
}

func TestManifestDryRun(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx")

	out, err := execute(t, "manifest", "--dry-run", root)
	require.NoError(t, err)
	assert.Contains(t, out, "export default manifest;")
	assert.NoFileExists(t, filepath.Join(root, "fresh.gen.ts"))

	_, err = execute(t, "manifest", "--dry-run", "--check", root)
	assert.Error(t, err, "flags are mutually exclusive")
}

func TestManifestConflict(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/about.tsx", "routes/(marketing)/about.tsx")

	_, err := execute(t, "manifest", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Route conflict detected")
	assert.Contains(t, err.Error(), "private group")
	assert.NoFileExists(t, filepath.Join(root, "fresh.gen.ts"))
}

func TestRoutesCommand(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx", "routes/blog/[slug].tsx", "routes/_app.tsx", "islands/Counter.tsx")

	out, err := execute(t, "routes", root)
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "/blog/:slug")
	assert.Contains(t, out, "3 routes, 1 islands")

	out, err = execute(t, "routes", "-o", "json", root)
	require.NoError(t, err)
	var entries []manifest.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 4)
	assert.Equal(t, manifest.KindIsland, entries[3].Kind)

	out, err = execute(t, "routes", "-o", "yaml", root)
	require.NoError(t, err)
	var fromYAML []manifest.Entry
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, entries, fromYAML)

	_, err = execute(t, "routes", "-o", "xml", root)
	assert.Error(t, err)
}

func TestRoutesEmptyProject(t *testing.T) {
	out, err := execute(t, "routes", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No routes or islands found.")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.GetVersion(), info.Version)

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.GetShortVersion()+"\n", out)

	out, err = execute(t, "version", "--detailed")
	require.NoError(t, err)
	assert.Contains(t, out, "Build type:")

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestAuditCommand(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx", "islands/Counter.tsx")

	out, err := execute(t, "audit", root)
	require.NoError(t, err)
	assert.Contains(t, out, "home (recording)")
	assert.Contains(t, out, "0 violations")

	out, err = execute(t, "audit", "-o", "json", root)
	require.NoError(t, err)
	var reports []accessibility.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	assert.Len(t, reports, 5)

	_, err = execute(t, "audit", "--wcag-level", "AAA", root)
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx")

	out, err := execute(t, "config", "validate", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = execute(t, "config", "show", "-o", "json")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, config.DefaultManifest, cfg.Project.Manifest)
	assert.Equal(t, config.DefaultTitle, cfg.Studio.Title)

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "manifest: fresh.gen.ts")
}

func TestConfigValidateStrict(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "config", "validate", root)
	require.NoError(t, err)
	assert.Contains(t, out, "no routes/ directory found")

	_, err = execute(t, "config", "validate", "--strict", root)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx")
	t.Setenv("BUTTONSTUDIO_PROJECT_MANIFEST", "manifest.gen.ts")

	out, err := execute(t, "manifest", root)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote manifest.gen.ts")
	assert.FileExists(t, filepath.Join(root, "manifest.gen.ts"))
}

func TestConfigFile(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx", "routes/legacy/old.tsx")
	cfgPath := filepath.Join(t.TempDir(), "studio.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("project:\n  ignore:\n    - routes/legacy/**\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "routes", "-o", "json", root)
	require.NoError(t, err)
	var entries []manifest.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "routes/index.tsx", entries[0].File)

	require.NoError(t, os.WriteFile(cfgPath, []byte("project: [unclosed\n"), 0o644))
	_, err = execute(t, "--config", cfgPath, "routes", root)
	assert.Error(t, err)
}
