package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every download tracked by the engine, one JSON object per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for _, r := range e.List() {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
