package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagServer string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sloctl",
		Short:        "sloctl — operate an scx-slo engine over its HTTP API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "sloengine URL (or SLOSCX_SERVER env)")

	root.AddCommand(
		newUpsertCmd(),
		newRemoveCmd(),
		newGetCmd(),
		newEventsCmd(),
		newMetricsCmd(),
		newAuditCmd(),
	)
	return root
}

func defaultServer() string {
	if s := os.Getenv("SLOSCX_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}
