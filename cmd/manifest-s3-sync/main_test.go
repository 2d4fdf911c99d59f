package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/config"
)

type cliFixture struct {
	dir          string
	configPath   string
	manifestDir  string
	resultJSON   string
	sourceFolder string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	f := &cliFixture{
		dir:          dir,
		configPath:   filepath.Join(dir, "config.yaml"),
		manifestDir:  filepath.Join(dir, "manifests"),
		resultJSON:   filepath.Join(dir, "result.json"),
		sourceFolder: filepath.Join(dir, "docs"),
	}
	require.NoError(t, os.MkdirAll(f.sourceFolder, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.sourceFolder, "a.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(f.sourceFolder, "b.bin"), []byte("bin"), 0644))

	yaml := fmt.Sprintf(`
env: test
log_level: error
known_sources:
  docs:
    path: %q
    file_extensions: ["*.txt"]
`, f.sourceFolder)
	require.NoError(t, os.WriteFile(f.configPath, []byte(yaml), 0644))
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(config.NewViper())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func readResult(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	return got
}

func TestSyncCommandDryRun(t *testing.T) {
	f := newCLIFixture(t)

	_, err := execute(t, "sync", "docs",
		"--config", f.configPath,
		"--manifest-dir", f.manifestDir,
		"--dryrun",
		"--result-json-file", f.resultJSON,
	)
	require.NoError(t, err)

	got := readResult(t, f.resultJSON)
	sources := got["sources"].([]any)
	require.Len(t, sources, 1)
	docs := sources[0].(map[string]any)
	assert.Equal(t, "docs", docs["name"])
	assert.Equal(t, float64(1), docs["matched"])
	assert.Equal(t, float64(1), docs["uploaded"])
	assert.NotContains(t, docs, "error")

	summary := got["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["sources"])
	assert.Equal(t, float64(2), summary["bytes"])

	_, err = os.Stat(filepath.Join(f.manifestDir, "docs.manifest.json"))
	assert.True(t, os.IsNotExist(err), "dry run leaves no manifest")
}

func TestSyncCommandUnknownSource(t *testing.T) {
	f := newCLIFixture(t)

	_, err := execute(t, "sync", "docs", "missing",
		"--config", f.configPath,
		"--manifest-dir", f.manifestDir,
		"--dryrun",
		"--result-json-file", f.resultJSON,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 sources failed")

	got := readResult(t, f.resultJSON)
	sources := got["sources"].([]any)
	require.Len(t, sources, 2)
	missing := sources[1].(map[string]any)
	assert.Equal(t, "missing", missing["name"])
	assert.Contains(t, missing["error"], "unknown known source")
}

func TestSyncCommandRequiresBucket(t *testing.T) {
	f := newCLIFixture(t)

	_, err := execute(t, "sync", "docs", "--config", f.configPath, "--manifest-dir", f.manifestDir)
	assert.ErrorIs(t, err, config.ErrNoBucket)
}

func TestSyncCommandRequiresArgs(t *testing.T) {
	f := newCLIFixture(t)

	_, err := execute(t, "sync", "--config", f.configPath)
	assert.Error(t, err)
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev (commit: none")
}

func TestCommandErrorsArePrinted(t *testing.T) {
	f := newCLIFixture(t)

	badConfig := filepath.Join(f.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badConfig, []byte("known_sources: [docs\n"), 0644))
	emptyConfig := filepath.Join(f.dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyConfig, []byte("env: test\n"), 0644))

	tests := []struct {
		name      string
		args      []string
		wantErr   string
		wantUsage bool
	}{
		{
			name:    "malformed config",
			args:    []string{"sync", "docs", "-c", badConfig, "--dryrun"},
			wantErr: "config read",
		},
		{
			name:    "no known sources",
			args:    []string{"sync", "docs", "-c", emptyConfig, "--dryrun"},
			wantErr: config.ErrNoKnownSources.Error(),
		},
		{
			name:    "missing bucket",
			args:    []string{"sync", "docs", "-c", f.configPath, "--manifest-dir", f.manifestDir},
			wantErr: config.ErrNoBucket.Error(),
		},
		{
			name:      "missing source argument",
			args:      []string{"sync", "-c", f.configPath},
			wantErr:   "requires at least 1 arg",
			wantUsage: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, out, "Error: ")
			assert.Contains(t, out, tt.wantErr)
			if tt.wantUsage {
				assert.Contains(t, out, "Usage:")
			} else {
				assert.NotContains(t, out, "Usage:")
			}
		})
	}
}
