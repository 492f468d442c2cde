package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:     "cancel <path>",
	Aliases: []string{"rm"},
	Short:   "Cancel a download and remove its partial temp file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}

		resp, err := e.Cancel(args[0])
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(resp)
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
