package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eventproxy",
		Short: "Event-scoped gateway for hosted model deployments",
		Long:  "eventproxy lets event attendees call shared model deployments with an event token while enforcing the event's token budget.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newHashTokenCmd(),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("eventproxy %s\n", Version))

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
