package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/s3client"
)

const sampleYAML = `
env: development
api_key: secret
log_level: debug
file_extensions: [".txt", "png"]
http:
  addr: 0.0.0.0:9090
blob:
  bucket_name: assets-bucket
  prefix: cdn
  region: ap-northeast-1
  endpoint: http://localhost:9000
queue:
  capacity: 3
  admission_timeout: 250ms
worker:
  concurrency: 2
  startup_delay: 1s
  sweep_interval: 10m
known_sources:
  Docs:
    path: /srv/docs
    excludes: ["drafts/"]
  fonts:
    path: /srv/fonts
    file_extensions: [".ttf", ".woff2"]
    force_lower_case: false
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func load(t *testing.T, path string) *Config {
	t.Helper()
	v := NewViper()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	cfg := load(t, path)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{".txt", "png"}, cfg.FileExtensions)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Addr)
	assert.Equal(t, "assets-bucket", cfg.Blob.BucketName)
	assert.Equal(t, "cdn", cfg.Blob.Prefix)
	assert.Equal(t, "ap-northeast-1", cfg.Blob.Region)
	assert.Equal(t, "http://localhost:9000", cfg.Blob.Endpoint)
	assert.Equal(t, 3, cfg.Queue.Capacity)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.AdmissionTimeout)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, time.Second, cfg.Worker.StartupDelay)
	assert.Equal(t, 10*time.Minute, cfg.Worker.SweepInterval)

	assert.Equal(t, []string{"docs", "fonts"}, cfg.SourceNames())
	require.NoError(t, cfg.Validate())
}

func TestKnownSourcesResolution(t *testing.T) {
	cfg := load(t, writeConfig(t, "config.yaml", sampleYAML))
	sources := cfg.GetKnownSources()
	require.Len(t, sources, 2)

	docs := sources["docs"]
	assert.Equal(t, "/srv/docs", docs.Root)
	assert.Equal(t, []string{".txt", "png"}, docs.FileExtensions, "inherits top-level extensions")
	assert.True(t, docs.ForceLowerCase, "lower-case keys by default")
	assert.Equal(t, []string{"drafts/"}, docs.Excludes)

	fonts := sources["fonts"]
	assert.Equal(t, []string{".ttf", ".woff2"}, fonts.FileExtensions)
	assert.False(t, fonts.ForceLowerCase)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"dry_run": true,
		"known_sources": {"docs": {"path": "~/docs"}}
	}`)
	cfg := load(t, path)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, filepath.Join(home, "docs"), cfg.KnownSources["docs"].Path)
	require.NoError(t, cfg.Validate(), "dry run needs no bucket")
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, DefaultAddr, cfg.HTTP.Addr)
	assert.Equal(t, DefaultManifestDir, cfg.ManifestDir)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.Queue.AdmissionTimeout)
	assert.Equal(t, DefaultStartupDelay, cfg.Worker.StartupDelay)
	assert.Zero(t, cfg.Worker.SweepInterval)
	assert.Empty(t, cfg.KnownSources)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MANIFEST_SYNC_BLOB_BUCKET_NAME", "from-env")
	t.Setenv("MANIFEST_SYNC_WORKER_CONCURRENCY", "7")
	t.Setenv("MANIFEST_SYNC_HTTP_ADDR", "127.0.0.1:1234")

	cfg := load(t, writeConfig(t, "config.yaml", sampleYAML))
	assert.Equal(t, "from-env", cfg.Blob.BucketName)
	assert.Equal(t, 7, cfg.Worker.Concurrency)
	assert.Equal(t, "127.0.0.1:1234", cfg.HTTP.Addr)
}

func TestReadFileMissingIsNotAnError(t *testing.T) {
	v := NewViper()
	assert.NoError(t, ReadFile(v, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestReadFileMalformed(t *testing.T) {
	path := writeConfig(t, "config.yaml", "known_sources: [\n")
	assert.Error(t, ReadFile(NewViper(), path))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:  EnvProduction,
			Blob: s3client.Config{BucketName: "bucket"},
			KnownSources: map[string]KnownSourceConfig{
				"docs": {Path: "/srv/docs"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		errText string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad env", mutate: func(c *Config) { c.Env = "staging" }, wantErr: ErrInvalidEnv},
		{name: "no bucket", mutate: func(c *Config) { c.Blob.BucketName = "" }, wantErr: ErrNoBucket},
		{name: "no bucket dry run", mutate: func(c *Config) { c.Blob.BucketName = ""; c.DryRun = true }},
		{name: "no sources", mutate: func(c *Config) { c.KnownSources = nil }, wantErr: ErrNoKnownSources},
		{
			name:    "source without path",
			mutate:  func(c *Config) { c.KnownSources["assets"] = KnownSourceConfig{} },
			errText: `known source "assets": path is required`,
		},
		{
			name:    "source name with separator",
			mutate:  func(c *Config) { c.KnownSources["a/b"] = KnownSourceConfig{Path: "/x"} },
			errText: "path separators",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				assert.ErrorContains(t, err, tt.errText)
			default:
				assert.NoError(t, err)
				assert.Equal(t, DefaultAddr, c.HTTP.Addr)
				assert.Equal(t, DefaultManifestDir, c.ManifestDir)
			}
		})
	}
}
