package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <path>",
	Short: "Start an idle download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}

		resp, err := e.Start(args[0])
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(resp)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
