package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"concierge/internal/events"
	"concierge/pkg/config"
	"concierge/pkg/kafka"
	kafka_config "concierge/pkg/kafka/config"
	kafka_middleware "concierge/pkg/kafka/middleware"
	"concierge/pkg/logger"

	"github.com/spf13/cobra"
)

func newEventsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published status changes",
	}
	cmd.AddCommand(newEventsTailCommand(opts))
	return cmd
}

func newEventsTailCommand(opts *RootOptions) *cobra.Command {
	var topic, group string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print status changes as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			kafkaCfg, err := kafka_config.Load()
			if err != nil {
				return err
			}

			log := logger.New(logger.Config{
				Level:   logger.WARN,
				Format:  logger.TEXT,
				Output:  cmd.ErrOrStderr(),
				Service: "allocctl",
			})

			consumer, err := kafka.NewConsumer(kafkaCfg, topic, group, printChange(cmd, opts), log)
			if err != nil {
				return err
			}
			consumer.Use(kafka_middleware.LoggingConsumerMiddleware(log))
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", envOr(config.EnvKafkaEventsTopic, config.DefaultKafkaEventsTopic), "events topic")
	cmd.Flags().StringVar(&group, "group", "allocctl-tail", "consumer group id")
	return cmd
}

func printChange(cmd *cobra.Command, opts *RootOptions) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		change, err := events.Decode(msg)
		if err != nil {
			return err
		}
		return writeOutput(cmd, opts, change, func(w io.Writer) {
			fmt.Fprintf(w, "%s  %-24s  %s  %s -> %s\n",
				change.OccurredAt.Format("15:04:05.000"), change.Type, change.EntityID, change.From, change.To)
		})
	}
}
