package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"concierge/pkg/model"
	"concierge/pkg/sanitizer"

	"github.com/spf13/cobra"
)

type reconcileResult struct {
	JourneyID  string `json:"journey_id,omitempty"`
	Reconciled int    `json:"reconciled"`
}

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	var journeyID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair journeys left inconsistent by interrupted writes",
		Long: `Reconcile re-derives step and journey statuses from their requests and
awards orphaned acceptances. Without --journey every active journey is
visited. Running it twice changes nothing the second time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				res := reconcileResult{JourneyID: journeyID}
				if journeyID != "" {
					if err := s.Service.Reconcile(ctx, journeyID); err != nil {
						return err
					}
					res.Reconciled = 1
				} else {
					n, err := s.Service.ReconcileAll(ctx)
					res.Reconciled = n
					if err != nil {
						return err
					}
				}
				return writeOutput(cmd, opts, res, func(w io.Writer) {
					fmt.Fprintf(w, "reconciled %d journey(s)\n", res.Reconciled)
				})
			})
		},
	}

	cmd.Flags().StringVar(&journeyID, "journey", "", "reconcile a single journey")
	return cmd
}

func newExpireCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire pending requests past their deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				n, err := s.Service.Expire(ctx)
				if err != nil {
					return err
				}
				return writeOutput(cmd, opts, map[string]int{"expired": n}, func(w io.Writer) {
					fmt.Fprintf(w, "expired %d request(s)\n", n)
				})
			})
		},
	}
}

func newBroadcastCommand(opts *RootOptions) *cobra.Command {
	in := &model.BroadcastInput{}

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send a step to establishments as pending requests",
		Example: `  allocctl broadcast --step 6f1c... --establishment est-a --establishment est-b
  allocctl broadcast --step 6f1c... --establishment est-a,est-b --ttl 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				created, err := s.Service.Broadcast(ctx, in)
				if err != nil {
					return err
				}
				return writeOutput(cmd, opts, created, func(w io.Writer) {
					fmt.Fprintf(w, "created %d request(s)\n", len(created))
					for _, r := range created {
						fmt.Fprintf(w, "  %s  %s  expires %s\n", r.ID, r.EstablishmentID, formatTime(r.ExpiresAt))
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&in.StepID, "step", "", "step id")
	cmd.Flags().StringSliceVar(&in.EstablishmentIDs, "establishment", nil, "target establishment id (repeatable)")
	cmd.Flags().DurationVar(&in.TTL, "ttl", 0, "time to respond (defaults to REQUEST_TTL)")
	_ = cmd.MarkFlagRequired("step")
	_ = cmd.MarkFlagRequired("establishment")
	return cmd
}

func newEstablishmentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "establishment",
		Short: "Manage establishment contact records",
	}
	cmd.AddCommand(newEstablishmentUpsertCommand(opts))
	return cmd
}

func newEstablishmentUpsertCommand(opts *RootOptions) *cobra.Command {
	var est model.Establishment

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update an establishment",
		RunE: func(cmd *cobra.Command, args []string) error {
			est.ID = sanitizer.NormalizeIdentifier(est.ID)
			if est.ID == "" {
				return fmt.Errorf("--id cannot be empty")
			}
			if est.ContactPhone != "" {
				phone := sanitizer.NormalizePhone(est.ContactPhone)
				if phone == "" {
					return fmt.Errorf("invalid phone number %q", est.ContactPhone)
				}
				est.ContactPhone = phone
			}
			est.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

			return withSession(cmd, opts, func(ctx context.Context, s *Session) error {
				if err := s.Store.UpsertEstablishment(ctx, &est); err != nil {
					return err
				}
				return writeOutput(cmd, opts, est, func(w io.Writer) {
					fmt.Fprintf(w, "saved establishment %s (%s)\n", est.ID, est.Name)
				})
			})
		},
	}

	cmd.Flags().StringVar(&est.ID, "id", "", "establishment id")
	cmd.Flags().StringVar(&est.Name, "name", "", "display name")
	cmd.Flags().StringVar(&est.ContactEmail, "email", "", "contact email")
	cmd.Flags().StringVar(&est.ContactPhone, "phone", "", "contact phone, stored as E.164")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
