// Command orchestratorctl is the operator CLI for the orchestrator daemon
// (§6 EXTERNAL INTERFACES): create and run workflows, inspect runs and
// their trace events, and approve or reject pending approval requests.
//
// It talks to a running cmd/orchestratord over its HTTP surface; it holds
// no state and implements no orchestration logic of its own.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	username  string
	password  string
	jsonOut   bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orchestratorctl",
		Short:         "Operator CLI for the orchestrator daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", envOr("ORCHESTRATOR_SERVER", "http://localhost:8080"), "orchestratord base URL (env: ORCHESTRATOR_SERVER)")
	cmd.PersistentFlags().StringVar(&token, "token", os.Getenv("ORCHESTRATOR_INTERNAL_TOKEN"), "internal service token (env: ORCHESTRATOR_INTERNAL_TOKEN)")
	cmd.PersistentFlags().StringVar(&username, "username", os.Getenv("ORCHESTRATOR_USERNAME"), "operator session username (env: ORCHESTRATOR_USERNAME)")
	cmd.PersistentFlags().StringVar(&password, "password", os.Getenv("ORCHESTRATOR_PASSWORD"), "operator session password (env: ORCHESTRATOR_PASSWORD)")
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON responses (output is always indented JSON; there is no table mode)")

	cmd.AddCommand(newWorkflowsCommand())
	cmd.AddCommand(newRunsCommand())
	cmd.AddCommand(newApprovalsCommand())

	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *apiClient {
	return newAPIClient(serverURL, token, username, password)
}

// printResult renders v as indented JSON whether or not --json is set; the
// daemon's payloads are nested enough (runs, traces, approvals) that a
// column-table rendering would lose information, so there is no table mode
// and both settings share one printer.
func printResult(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

// exitCodeFor maps an apiError's HTTP status to a process exit code, so
// scripts invoking orchestratorctl can branch without parsing stderr.
func exitCodeFor(err error) int {
	apiErr, ok := err.(*apiError)
	if !ok {
		return 1
	}
	switch {
	case apiErr.Status == 401 || apiErr.Status == 403:
		return 3
	case apiErr.Status == 404:
		return 4
	case apiErr.Status == 409:
		return 5
	default:
		return 1
	}
}
