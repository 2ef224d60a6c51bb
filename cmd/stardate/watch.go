package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blturner/stardate/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch local backend files and import on change",
	Long: `Watch monitors the directories behind every local-backend blog and
runs an import for a blog shortly after its document changes. Edits are
debounced so a burst of saves triggers a single import.

Runs until interrupted. Set log.file in the config to keep a rotating log
when running under a process manager.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, engine, err := openRuntime()
		if err != nil {
			return err
		}
		defer db.Close()

		w, err := watch.New(db, engine, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if err := w.Start(ctx); err != nil {
			return err
		}
		fmt.Println("watching for changes (Ctrl+C to stop)")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		cancel()
		return w.Stop()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
