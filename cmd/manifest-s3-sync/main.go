package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/config"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/logging"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.NewViper()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "manifest-s3-sync",
		Short: "Sync known local directories to S3, uploading only changed files",
		Long: `manifest-s3-sync keeps a SHA-256 manifest per known source and uploads
only the files whose content changed since the last successful upload.

Run without a subcommand to start the HTTP server.`,
		Version: versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// arguments are valid by now; later failures are not usage errors
			cmd.SilenceUsage = true
			return loadConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", "", "Config file (default ./manifest-s3-sync.yaml or ~/.manifest-s3-sync/manifest-s3-sync.yaml)")
	flags.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("manifest-dir", config.DefaultManifestDir, "Directory holding the per-source manifests")
	flags.Bool("dryrun", false, "Shows operations without executing")

	rootCmd.Flags().StringP("addr", "a", config.DefaultAddr, "Address to bind the HTTP server")

	rootCmd.AddCommand(newServeCmd(v), newSyncCmd(v))
	return rootCmd
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and process sync requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}
	cmd.Flags().StringP("addr", "a", config.DefaultAddr, "Address to bind the HTTP server")
	return cmd
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	path, _ := cmd.Flags().GetString("config")
	if err := config.ReadFile(v, path); err != nil {
		return err
	}

	v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	v.BindPFlag("manifest_dir", cmd.Flags().Lookup("manifest-dir"))
	v.BindPFlag("dry_run", cmd.Flags().Lookup("dryrun"))
	if f := cmd.Flags().Lookup("addr"); f != nil {
		v.BindPFlag("http.addr", f)
	}

	if _, err := logging.Setup(v.GetString("log_level")); err != nil {
		slog.Warn("falling back to info level", "error", err)
	}
	return nil
}

func loadValidConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadValidConfig(cmd, v)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Options{Version: version, Logger: slog.Default()})
	if err != nil {
		slog.Error("server init failed", "error", err)
		return err
	}

	defer slog.Info("Bye!")
	return srv.Start(cmd.Context())
}
