package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/blturner/stardate/internal/config"
	"github.com/blturner/stardate/internal/store"
	"github.com/blturner/stardate/internal/sync"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stardate",
	Short: "Sync blog posts between text documents and a local database",
	Long: `stardate keeps blog posts synchronized between plain text documents
(stored locally, on S3, or in a GitHub gist) and a local SQLite database.

Posts are identified across renames and edits by a stardate, a UUID written
back into the document the first time a post is imported.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init needs to run before a config file exists
		if cmd.Name() == "init" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger = newLogger(cfg)
		return nil
	},
}

// newLogger builds the process logger: pretty console output when stderr is
// a terminal, JSON otherwise, and a rotating file sink when log.file is set.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		out = os.Stderr
	}
	if cfg.Log.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = zerolog.MultiLevelWriter(out, rotated)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// openRuntime opens the database and builds a sync engine from the loaded
// config. The caller owns closing the returned DB.
func openRuntime() (*store.DB, *sync.Engine, error) {
	db, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	engine := sync.New(db, sync.Config{
		Blobs:           cfg.BlobOptions(),
		DefaultTimezone: cfg.DefaultTimezone,
	}, logger)
	return db, engine, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./stardate.toml, ~/.config/stardate/)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
