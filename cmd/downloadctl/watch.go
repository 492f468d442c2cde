package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the EventBus stream as newline-delimited JSON until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}

		ch, unsubscribe := e.Subscribe()
		defer unsubscribe()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		enc := json.NewEncoder(os.Stdout)
		for {
			select {
			case changed := <-ch:
				fmt.Fprintf(os.Stderr, "[%s] %s%%\n", changed.Download.Path, humanize.FtoaWithDigits(changed.Download.Progress, 1))
				if err := enc.Encode(changed.Download); err != nil {
					return err
				}
			case <-sig:
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
