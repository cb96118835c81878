package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print a session token for COUNTCAM_TOKEN",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), api.Token())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
