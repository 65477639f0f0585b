package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowforge/orchestrator/internal/model"
)

func newWorkflowsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Create, commit, and run workflows",
	}
	cmd.AddCommand(newWorkflowsCreateCommand())
	cmd.AddCommand(newWorkflowsReplaceCommand())
	cmd.AddCommand(newWorkflowsCommitCommand())
	cmd.AddCommand(newWorkflowsRunCommand())
	return cmd
}

func newWorkflowsCreateCommand() *cobra.Command {
	var graphFile, organizationID string
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a workflow from a graph file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := readGraphFile(graphFile)
			if err != nil {
				return err
			}
			var result any
			err = client().do("POST", "/workflows", nil, map[string]any{
				"id":             args[0],
				"organizationId": organizationID,
				"graph":          graph,
			}, &result)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
	cmd.Flags().StringVar(&graphFile, "graph-file", "", "path to a JSON-encoded graph (required, use '-' for stdin)")
	cmd.Flags().StringVar(&organizationID, "organization-id", "", "owning organization id")
	_ = cmd.MarkFlagRequired("graph-file")
	return cmd
}

func newWorkflowsReplaceCommand() *cobra.Command {
	var graphFile string
	cmd := &cobra.Command{
		Use:   "replace <id>",
		Short: "Replace a workflow's draft graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := readGraphFile(graphFile)
			if err != nil {
				return err
			}
			var result any
			if err := client().do("PUT", "/workflows/"+args[0], nil, graph, &result); err != nil {
				return err
			}
			return printResult(result)
		},
	}
	cmd.Flags().StringVar(&graphFile, "graph-file", "", "path to a JSON-encoded graph (required, use '-' for stdin)")
	_ = cmd.MarkFlagRequired("graph-file")
	return cmd
}

func newWorkflowsCommitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <id>",
		Short: "Compile a workflow's draft graph into an executable plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result any
			if err := client().do("POST", "/workflows/"+args[0]+"/commit", nil, nil, &result); err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newWorkflowsRunCommand() *cobra.Command {
	var (
		inputs         []string
		organizationID string
	)
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Start a run of a workflow's committed plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := parseInputs(inputs)
			if err != nil {
				return err
			}
			var result any
			err = client().do("POST", "/workflows/"+args[0]+"/run", nil, map[string]any{
				"inputs":         merged,
				"organizationId": organizationID,
			}, &result)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "entrypoint input in key=value format, JSON values accepted")
	cmd.Flags().StringVar(&organizationID, "organization-id", "", "organization id override for this run")
	return cmd
}

// readGraphFile reads path ("-" for stdin) and decodes it as a
// model.Graph, so a malformed file is caught before the daemon round trip.
func readGraphFile(path string) (model.Graph, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return model.Graph{}, fmt.Errorf("read graph file: %w", err)
	}

	var graph model.Graph
	if err := json.Unmarshal(raw, &graph); err != nil {
		return model.Graph{}, fmt.Errorf("parse graph file: %w", err)
	}
	return graph, nil
}

// parseInputs converts key=value pairs into a map, attempting a JSON
// decode of each value first so --input count=3 becomes a number rather
// than the string "3"; a value that isn't valid JSON is kept as a string.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --input %q, expected key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[key] = decoded
		} else {
			out[key] = value
		}
	}
	return out, nil
}
