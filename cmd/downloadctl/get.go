package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Show the current Record for a download path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}

		rec, err := e.Get(args[0])
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(rec)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
