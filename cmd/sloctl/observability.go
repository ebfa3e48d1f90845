package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var maxEvents int
	var timeoutMS int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Poll deadline-miss events from the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flagServer)
			path := fmt.Sprintf("/v1/events?max=%d&timeout_ms=%d", maxEvents, timeoutMS)
			body, status, err := c.get(path)
			if err != nil {
				return err
			}
			return printResponse(status, body)
		},
	}
	cmd.Flags().IntVar(&maxEvents, "max", 100, "maximum events to return")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 0, "block up to this long waiting for an event")
	return cmd
}

func newMetricsCmd() *cobra.Command {
	var prometheus bool
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show the engine's counter snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flagServer)
			path := "/v1/metrics"
			if prometheus {
				path = "/v1/metrics/prometheus"
			}
			body, status, err := c.get(path)
			if err != nil {
				return err
			}
			if prometheus {
				fmt.Print(string(body))
				return nil
			}
			return printResponse(status, body)
		},
	}
	cmd.Flags().BoolVar(&prometheus, "prometheus", false, "render in Prometheus text exposition format")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var namespace string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List admission-decision audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flagServer)
			path := "/v1/admin/audit?limit=" + strconv.Itoa(limit)
			if namespace != "" {
				path += "&namespace=" + namespace
			}
			body, status, err := c.get(path)
			if err != nil {
				return err
			}
			return printResponse(status, body)
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "filter by namespace")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to return")
	return cmd
}
