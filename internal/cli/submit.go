package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clubatlas/internal/core"
	"clubatlas/pkg/domain"
)

func getSubmitCmd() *cobra.Command {
	var (
		kind     string
		targetID string
		contact  string
	)
	cmd := &cobra.Command{
		Use:   "submit <payload.json>",
		Short: "Submit a club payload into the intake pipeline",
		Long: `Submit reads a club payload from a JSON file and runs the full intake
pipeline: advisory duplicate check, durable buffer write, and an attempt
against the authoritative store. When the store is unreachable the submission
is accepted from the buffer alone and replayed by the next sweep.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read payload file: %w", err)
			}
			var payload domain.ClubPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}

			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.service.Intake(ctx, core.IntakeRequest{
				Kind:     domain.SubmissionKind(kind),
				TargetID: targetID,
				Payload:  payload,
				Origin:   domain.OriginMeta{SubmitterContact: contact},
			})
			if err != nil {
				return err
			}
			if result.Buffered {
				fmt.Printf("submission buffered for replay (buffer key %s)\n", result.Receipt.Key)
			} else {
				fmt.Printf("submission %s accepted\n", result.SubmissionID)
			}
			for _, match := range result.DupCheck.Matches {
				fmt.Printf("possible duplicate: %s %q (score %.2f)\n", match.RecordID, match.Name, match.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(domain.KindNew), "submission kind: new or edit")
	cmd.Flags().StringVar(&targetID, "target", "", "published record ID (required for kind=edit)")
	cmd.Flags().StringVar(&contact, "contact", "", "submitter contact, e.g. an email address")
	return cmd
}
