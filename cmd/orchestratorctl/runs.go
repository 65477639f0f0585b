package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and control in-flight and completed runs",
	}
	cmd.AddCommand(newRunsStatusCommand())
	cmd.AddCommand(newRunsResultCommand())
	cmd.AddCommand(newRunsCancelCommand())
	cmd.AddCommand(newRunsTraceCommand())
	return cmd
}

func newRunsStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <runId>",
		Short: "Show a run's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result any
			if err := client().do("GET", "/workflows/runs/"+args[0]+"/status", nil, nil, &result); err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newRunsResultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "result <runId>",
		Short: "Show a completed run's outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result any
			if err := client().do("GET", "/workflows/runs/"+args[0]+"/result", nil, nil, &result); err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newRunsCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <runId>",
		Short: "Cancel an active run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result any
			if err := client().do("POST", "/workflows/runs/"+args[0]+"/cancel", nil, nil, &result); err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newRunsTraceCommand() *cobra.Command {
	var after int64
	cmd := &cobra.Command{
		Use:   "trace <runId>",
		Short: "List a run's trace events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if after > 0 {
				query.Set("after", strconv.FormatInt(after, 10))
			}
			var result any
			if err := client().do("GET", "/workflows/runs/"+args[0]+"/trace", query, nil, &result); err != nil {
				return err
			}
			return printResult(result)
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "only show events with a sequence number greater than this")
	return cmd
}
