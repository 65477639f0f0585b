package main

import (
	"fmt"
	"net/url"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

func newApprovalsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List and resolve pending approval requests",
	}
	cmd.AddCommand(newApprovalsListCommand())
	cmd.AddCommand(newApprovalsGetCommand())
	cmd.AddCommand(newApprovalsResolveCommand(true))
	cmd.AddCommand(newApprovalsResolveCommand(false))
	return cmd
}

func newApprovalsListCommand() *cobra.Command {
	var organizationID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approval requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if organizationID != "" {
				query.Set("organizationId", organizationID)
			}
			var result any
			if err := client().do("GET", "/approvals", query, nil, &result); err != nil {
				return err
			}
			return printResult(result)
		},
	}
	cmd.Flags().StringVar(&organizationID, "organization-id", "", "filter to one organization")
	return cmd
}

func newApprovalsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result any
			if err := client().do("GET", "/approvals/"+args[0], nil, nil, &result); err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

// newApprovalsResolveCommand builds either "approve" or "reject": both
// resolve the same approval request in opposite directions, and both
// prompt for confirmation interactively unless --yes is set, since
// resolving an approval unblocks a paused run that cannot be re-paused.
func newApprovalsResolveCommand(approved bool) *cobra.Command {
	var (
		selection string
		note      string
		yes       bool
	)
	use, short := "reject <id>", "Reject a pending approval request"
	if approved {
		use, short = "approve <id>", "Approve a pending approval request"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				verb := "reject"
				if approved {
					verb = "approve"
				}
				confirmed := false
				prompt := &survey.Confirm{Message: fmt.Sprintf("%s approval %s?", verb, args[0])}
				if err := survey.AskOne(prompt, &confirmed); err != nil {
					return fmt.Errorf("prompt for confirmation: %w", err)
				}
				if !confirmed {
					return fmt.Errorf("aborted")
				}
			}

			path := "/approvals/" + args[0] + "/reject"
			if approved {
				path = "/approvals/" + args[0] + "/approve"
			}
			var result any
			err := client().do("POST", path, nil, map[string]any{
				"selection":    selection,
				"responseNote": note,
			}, &result)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
	cmd.Flags().StringVar(&selection, "selection", "", "selected option id, for a multi-option approval request")
	cmd.Flags().StringVar(&note, "note", "", "response note recorded alongside the resolution")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the interactive confirmation prompt")
	return cmd
}
