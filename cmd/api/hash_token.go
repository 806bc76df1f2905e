package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eventproxy/internal/services"
)

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the digest stored as an event's auth token hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), services.HashToken(args[0]))
			return err
		},
	}
}
