package cli

import (
	"fmt"
	"io"

	"concierge/pkg/client"

	"github.com/spf13/cobra"
)

func newRequestsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Act on step requests as an establishment through the API",
	}

	cmd.AddCommand(newRequestsListCommand(opts))
	cmd.AddCommand(newRequestsGetCommand(opts))
	cmd.AddCommand(newRequestsAcceptCommand(opts))
	cmd.AddCommand(newRequestsRefuseCommand(opts))
	return cmd
}

func apiClient(opts *RootOptions) *client.RequestsClient {
	return client.NewRequestsClient(opts.APIURL, opts.Token)
}

func newRequestsListCommand(opts *RootOptions) *cobra.Command {
	var (
		status string
		limit  int
		offset int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests addressed to your establishments",
		RunE: func(cmd *cobra.Command, args []string) error {
			requests, err := apiClient(opts).List(cmd.Context(), status, limit, offset)
			if err != nil {
				return err
			}
			return writeOutput(cmd, opts, requests, func(w io.Writer) {
				for _, r := range requests {
					fmt.Fprintf(w, "%s  %-10s  %s  expires %s\n", r.ID, r.Status, r.EstablishmentID, formatTime(r.ExpiresAt))
				}
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().Int64Var(&offset, "offset", 0, "page offset")
	return cmd
}

func newRequestsGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <request-id>",
		Short: "Show a request with its step and journey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := apiClient(opts).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd, opts, detail, func(w io.Writer) {
				fmt.Fprintf(w, "request  %s  %s\n", detail.Request.ID, detail.Request.Status)
				if detail.Step != nil {
					fmt.Fprintf(w, "step     %s  %s  %s\n", detail.Step.ID, detail.Step.Universe, detail.Step.Status)
				}
				if detail.Journey != nil {
					fmt.Fprintf(w, "journey  %s  %q  %s\n", detail.Journey.ID, detail.Journey.Title, detail.Journey.Status)
				}
			})
		},
	}
}

func newRequestsAcceptCommand(opts *RootOptions) *cobra.Command {
	var (
		price          float64
		note           string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "accept <request-id>",
		Short: "Accept a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body client.ResponseBody
			if cmd.Flags().Changed("price") {
				body.ProposedPrice = &price
			}
			if cmd.Flags().Changed("note") {
				body.ResponseNote = &note
			}

			if err := apiClient(opts).Accept(cmd.Context(), args[0], body, idempotencyKey); err != nil {
				return err
			}
			return writeOutput(cmd, opts, map[string]string{"accepted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "accepted %s\n", args[0])
			})
		},
	}

	cmd.Flags().Float64Var(&price, "price", 0, "proposed price")
	cmd.Flags().StringVar(&note, "note", "", "note for the concierge")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "replay-safe key for retries")
	return cmd
}

func newRequestsRefuseCommand(opts *RootOptions) *cobra.Command {
	var (
		note           string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "refuse <request-id>",
		Short: "Refuse a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var notePtr *string
			if cmd.Flags().Changed("note") {
				notePtr = &note
			}

			if err := apiClient(opts).Refuse(cmd.Context(), args[0], notePtr, idempotencyKey); err != nil {
				return err
			}
			return writeOutput(cmd, opts, map[string]string{"refused": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "refused %s\n", args[0])
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "reason for the concierge")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "replay-safe key for retries")
	return cmd
}
