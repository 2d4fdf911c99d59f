package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/config"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/logging"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/server"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/engine"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/logger"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/manifest"
)

// SyncResult is written by --result-json-file.
type SyncResult struct {
	Sources []SourceResult  `json:"sources"`
	Summary logging.Summary `json:"summary"`
}

type SourceResult struct {
	*engine.Result
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

func newSyncCmd(v *viper.Viper) *cobra.Command {
	var resultJSONFile string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "sync <source>...",
		Short: "Sync the named known sources once and exit",
		Long: `sync runs one pass over each named known source in order, without the
request queue. It exits non-zero when any source fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(cmd, v)
			if err != nil {
				return err
			}
			return runSync(cmd, cfg, args, quiet, resultJSONFile)
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress per-file upload output")
	cmd.Flags().StringVar(&resultJSONFile, "result-json-file", "", "Path to output result as JSON file")
	return cmd
}

func runSync(cmd *cobra.Command, cfg *config.Config, names []string, quiet bool, resultJSONFile string) error {
	ctx := cmd.Context()
	log := slog.Default()

	sink, err := server.NewSink(ctx, cfg, log)
	if err != nil {
		return err
	}

	store := manifest.NewStore(cfg.ManifestDir, nil)
	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	eng := engine.New(sink, store, cfg, engine.Options{
		Logger: &logger.SyncLogger{Log: log, IsDryRun: cfg.DryRun, IsQuiet: quiet},
		DryRun: cfg.DryRun,
	})

	result := SyncResult{Sources: []SourceResult{}}
	var results []*engine.Result
	var failed int

	for _, name := range names {
		r, err := eng.Sync(ctx, name)
		sr := SourceResult{Result: r, Name: name}
		if err != nil {
			failed++
			sr.Error = err.Error()
			log.Error("sync failed", "source", name, "error", err)
		}
		result.Sources = append(result.Sources, sr)
		results = append(results, r)

		if ctx.Err() != nil {
			break
		}
	}

	result.Summary = logging.Summarize(results...)
	logging.LogSummary(log, result.Summary)

	if resultJSONFile != "" {
		if err := writeSyncResult(resultJSONFile, result); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(names))
	}
	return nil
}

func writeSyncResult(path string, result SyncResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
