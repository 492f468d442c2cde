package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <path>",
	Short: "Resume a paused download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}

		resp, err := e.Resume(args[0])
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(resp)
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
