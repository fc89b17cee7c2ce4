package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/docq-io/docq/internal/cmd/client"
	serverrun "github.com/docq-io/docq/internal/cmd/server"
	cfgpkg "github.com/docq-io/docq/internal/config"
	pebblestore "github.com/docq-io/docq/internal/storage/pebble"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docq",
		Short: "docq message queue CLI",
		Long:  "docq is a priority message queue over a document store. This CLI runs the server and basic queue operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the docq server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			store, _ := cmd.Flags().GetString("store")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			mongoURI, _ := cmd.Flags().GetString("mongo-uri")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if store != "" {
				cfg.Store = store
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if mongoURI != "" {
				cfg.Mongo.URI = mongoURI
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			return serverrun.Run(context.Background(), serverrun.Options{
				Config:        cfg,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
			})
		},
	}
	serverStartCmd.Flags().String("config", "", "Path to a JSON config file")
	serverStartCmd.Flags().String("store", "", "Store backend: embedded|mongo")
	serverStartCmd.Flags().String("data-dir", "", "Data directory for the embedded store")
	serverStartCmd.Flags().String("mongo-uri", "", "MongoDB connection URI")
	serverStartCmd.Flags().String("http", "", "HTTP listen address")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms")
	serverStartCmd.Flags().String("log-level", os.Getenv("DOCQ_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("DOCQ_LOG_FORMAT"), "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// queue operations against a running server
	rootCmd.AddCommand(clientcmd.NewQueueCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("DOCQ_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
