package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/engine"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/queue"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/s3client"
)

const (
	EnvPrefix      = "MANIFEST_SYNC"
	configFileName = "manifest-s3-sync"

	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	DefaultAddr         = "127.0.0.1:8080"
	DefaultStartupDelay = 5 * time.Second
	DefaultLogLevel     = "info"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".manifest-s3-sync")
	DefaultManifestDir = filepath.Join(DefaultConfigDir, "manifests")
)

var (
	ErrNoBucket       = errors.New("blob.bucket_name is required unless dry_run is set")
	ErrNoKnownSources = errors.New("at least one known source is required")
	ErrInvalidEnv     = errors.New("invalid env")
)

type Config struct {
	Path           string
	Env            string
	APIKey         string
	LogLevel       string
	DryRun         bool
	ManifestDir    string
	FileExtensions []string
	HTTP           HTTPConfig
	Blob           s3client.Config
	Queue          QueueConfig
	Worker         WorkerConfig
	KnownSources   map[string]KnownSourceConfig
}

type HTTPConfig struct {
	Addr string
}

type QueueConfig struct {
	Capacity         int
	AdmissionTimeout time.Duration
}

type WorkerConfig struct {
	Concurrency   int
	StartupDelay  time.Duration
	SweepInterval time.Duration
}

type KnownSourceConfig struct {
	Path           string   `mapstructure:"path"`
	FileExtensions []string `mapstructure:"file_extensions"`
	ForceLowerCase *bool    `mapstructure:"force_lower_case"`
	Excludes       []string `mapstructure:"excludes"`
}

// NewViper returns a viper instance with defaults and environment binding
// applied. Nested keys map to MANIFEST_SYNC_<SECTION>_<KEY>.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("env", EnvProduction)
	v.SetDefault("api_key", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("dry_run", false)
	v.SetDefault("manifest_dir", DefaultManifestDir)
	v.SetDefault("file_extensions", []string{})
	v.SetDefault("http.addr", DefaultAddr)
	v.SetDefault("blob.bucket_name", "")
	v.SetDefault("blob.prefix", "")
	v.SetDefault("blob.region", "")
	v.SetDefault("blob.profile", "")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.access_key", "")
	v.SetDefault("blob.secret_key", "")
	v.SetDefault("queue.capacity", 0)
	v.SetDefault("queue.admission_timeout", queue.DefaultAdmissionTimeout)
	v.SetDefault("worker.concurrency", 0)
	v.SetDefault("worker.startup_delay", DefaultStartupDelay)
	v.SetDefault("worker.sweep_interval", time.Duration(0))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads path into v. With an empty path the working directory and
// DefaultConfigDir are searched for manifest-s3-sync.{yaml,json,toml}; not
// finding one is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigDir)
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}
	return nil
}

// Load builds a Config from v. It does not validate.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Path:           v.ConfigFileUsed(),
		Env:            strings.ToLower(v.GetString("env")),
		APIKey:         v.GetString("api_key"),
		LogLevel:       v.GetString("log_level"),
		DryRun:         v.GetBool("dry_run"),
		ManifestDir:    expandHome(v.GetString("manifest_dir")),
		FileExtensions: v.GetStringSlice("file_extensions"),
		HTTP: HTTPConfig{
			Addr: v.GetString("http.addr"),
		},
		Blob: s3client.Config{
			BucketName: v.GetString("blob.bucket_name"),
			Prefix:     v.GetString("blob.prefix"),
			Region:     v.GetString("blob.region"),
			Profile:    v.GetString("blob.profile"),
			Endpoint:   v.GetString("blob.endpoint"),
			AccessKey:  v.GetString("blob.access_key"),
			SecretKey:  v.GetString("blob.secret_key"),
		},
		Queue: QueueConfig{
			Capacity:         v.GetInt("queue.capacity"),
			AdmissionTimeout: v.GetDuration("queue.admission_timeout"),
		},
		Worker: WorkerConfig{
			Concurrency:   v.GetInt("worker.concurrency"),
			StartupDelay:  v.GetDuration("worker.startup_delay"),
			SweepInterval: v.GetDuration("worker.sweep_interval"),
		},
	}

	sources := map[string]KnownSourceConfig{}
	if err := v.UnmarshalKey("known_sources", &sources); err != nil {
		return nil, fmt.Errorf("known_sources: %w", err)
	}
	cfg.KnownSources = make(map[string]KnownSourceConfig, len(sources))
	for name, src := range sources {
		src.Path = expandHome(src.Path)
		cfg.KnownSources[strings.ToLower(name)] = src
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEnv, c.Env)
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if c.ManifestDir == "" {
		c.ManifestDir = DefaultManifestDir
	}

	if !c.DryRun && c.Blob.BucketName == "" {
		return ErrNoBucket
	}

	if len(c.KnownSources) == 0 {
		return ErrNoKnownSources
	}
	for _, name := range c.SourceNames() {
		if strings.TrimSpace(c.KnownSources[name].Path) == "" {
			return fmt.Errorf("known source %q: path is required", name)
		}
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("known source %q: name must not contain path separators", name)
		}
	}

	return nil
}

// SourceNames returns the configured known source names, sorted.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.KnownSources))
	for name := range c.KnownSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetKnownSources resolves the configured sources for the engine. A source
// without its own file_extensions inherits the top-level list.
func (c *Config) GetKnownSources() map[string]engine.KnownSource {
	out := make(map[string]engine.KnownSource, len(c.KnownSources))
	for name, src := range c.KnownSources {
		exts := src.FileExtensions
		if len(exts) == 0 {
			exts = c.FileExtensions
		}
		lower := true
		if src.ForceLowerCase != nil {
			lower = *src.ForceLowerCase
		}
		out[name] = engine.KnownSource{
			Root:           src.Path,
			FileExtensions: exts,
			ForceLowerCase: lower,
			Excludes:       src.Excludes,
		}
	}
	return out
}

func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func expandHome(p string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
