package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

type upsertRequest struct {
	Namespace          string `json:"namespace"`
	WorkloadName       string `json:"workload_name"`
	PriorityClass      string `json:"priority_class"`
	DataClassification string `json:"data_classification"`
	BudgetMS           uint64 `json:"budget_ms"`
	Importance         uint32 `json:"importance"`
}

func newUpsertCmd() *cobra.Command {
	var namespace, workloadName, priorityClass, dataClassification string
	var budgetMS uint64
	var importance uint32

	cmd := &cobra.Command{
		Use:   "upsert <workload-id>",
		Short: "Create or update a workload's SLO configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flagServer)
			body, status, err := c.put("/v1/workloads/"+args[0], upsertRequest{
				Namespace:          namespace,
				WorkloadName:       workloadName,
				PriorityClass:      priorityClass,
				DataClassification: dataClassification,
				BudgetMS:           budgetMS,
				Importance:         importance,
			})
			if err != nil {
				return err
			}
			return printResponse(status, body)
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "default", "admission namespace")
	cmd.Flags().StringVar(&workloadName, "name", "", "workload name, for admission rule matching")
	cmd.Flags().StringVar(&priorityClass, "priority-class", "", "priority class, for admission rule matching")
	cmd.Flags().StringVar(&dataClassification, "data-classification", "", "data classification, for admission rule matching")
	cmd.Flags().Uint64Var(&budgetMS, "budget-ms", 100, "latency budget in milliseconds")
	cmd.Flags().Uint32Var(&importance, "importance", 50, "relative importance, 1-100")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <workload-id>",
		Short: "Remove a workload's SLO configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flagServer)
			body, status, err := c.delete("/v1/workloads/" + args[0])
			if err != nil {
				return err
			}
			return printResponse(status, body)
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <workload-id>",
		Short: "Show a workload's current SLO configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flagServer)
			body, status, err := c.get("/v1/workloads/" + args[0])
			if err != nil {
				return err
			}
			return printResponse(status, body)
		},
	}
}

func printResponse(status int, body []byte) error {
	if status >= http.StatusBadRequest {
		return fmt.Errorf("server returned %d: %s", status, body)
	}
	var pretty any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(string(out))
	return nil
}
