package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <path>",
	Short: "Pause an in-progress download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}

		resp, err := e.Pause(args[0])
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(resp)
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}
