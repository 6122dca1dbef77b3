package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func getApproveCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "approve <submission-id>",
		Short: "Approve a pending submission and publish its record",
		Long: `Approve claims a pending submission, publishes (or, for edit submissions,
updates in place) the club record, and triggers a snapshot rebuild. A
submission that is no longer pending is reported with its actual status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			sub, rec, err := rt.service.Approve(ctx, args[0], actor)
			if err != nil {
				return err
			}
			fmt.Printf("submission %s approved, record %s (%s / %s)\n",
				sub.ID, rec.ID, rec.Payload.Name, rec.Payload.University)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "reviewer identity (required)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func getRejectCmd() *cobra.Command {
	var (
		actor  string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "reject <submission-id>",
		Short: "Reject a pending submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			sub, err := rt.service.Reject(ctx, args[0], actor, reason)
			if err != nil {
				return err
			}
			fmt.Printf("submission %s rejected: %s\n", sub.ID, sub.Review.Reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "reviewer identity (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason (required, non-empty)")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
