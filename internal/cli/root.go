package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"concierge/internal/allocation/repository"
	"concierge/internal/allocation/service"
	"concierge/internal/bootstrap"
	"concierge/pkg/config"

	"github.com/spf13/cobra"
)

const (
	EnvAPIURL = "ALLOCATION_API_URL"
	EnvToken  = "ALLOCATION_TOKEN"

	DefaultAPIURL = "http://localhost:8080"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string
	APIURL string
	Token  string

	// Open builds the engine for commands that work against the store
	// directly instead of through the HTTP API.
	Open func(ctx context.Context) (*Session, error)
}

// Session is an opened engine. Close must be called once the command is done.
type Session struct {
	Service service.AllocationService
	Store   repository.Store
	Close   func(ctx context.Context) error
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Open: openSession})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocctl",
		Short: "Operate the journey request allocation engine",
		Long: `allocctl drives the allocation engine from the command line.

Store commands (reconcile, expire, broadcast, establishment) connect to the
database configured in the environment. API commands (requests) act as an
establishment through the HTTP API with a bearer token.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", envOr(EnvAPIURL, DefaultAPIURL), "allocation API base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv(EnvToken), "bearer token for API commands")

	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newExpireCommand(opts))
	cmd.AddCommand(newBroadcastCommand(opts))
	cmd.AddCommand(newEstablishmentCommand(opts))
	cmd.AddCommand(newRequestsCommand(opts))
	cmd.AddCommand(newEventsCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}

func openSession(ctx context.Context) (*Session, error) {
	cfg := config.Load("allocctl")
	cfg.Connect()

	rt, err := bootstrap.New(cfg)
	if err != nil {
		cfg.GracefulShutdown()
		return nil, err
	}
	return &Session{
		Service: rt.Service,
		Store:   rt.Store,
		Close: func(ctx context.Context) error {
			defer cfg.GracefulShutdown()
			return rt.Close(ctx)
		},
	}, nil
}

// withSession opens the engine, runs fn and closes the engine even when fn
// fails, so queued side effects still finish.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *Session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := opts.Open(ctx)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	runErr := fn(ctx, s)
	if err := s.Close(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
