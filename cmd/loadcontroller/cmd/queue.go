package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"GoLoadController/pkg/runner"
	"GoLoadController/pkg/throughput"
)

// Discard every sample waiting on the queue.
func flushCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Discard all queued throughput samples.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			q, err := runner.OpenQueue(ctx, app.Settings.Queue)
			if err != nil {
				return err
			}
			defer closeQueue(q)

			n, err := q.Flush(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discarded %d samples\n", n)
			return nil
		},
	}
	return cmd
}

// Hand reserved samples left behind by a killed controller back to the queue.
func requeueCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Return reserved but unacknowledged samples to the queue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			q, err := runner.OpenQueue(ctx, app.Settings.Queue)
			if err != nil {
				return err
			}
			defer closeQueue(q)

			n, err := runner.Requeue(ctx, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d samples\n", n)
			return nil
		},
	}
	return cmd
}

// Publish one sample, as a consumer would.
func pushCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Publish a single throughput sample.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var s throughput.Sample
			s.ConsumerID, _ = cmd.Flags().GetString("consumer")
			s.Throughput, _ = cmd.Flags().GetFloat64("throughput")
			s.ProducerCount, _ = cmd.Flags().GetInt("producers")
			body, err := s.Encode()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			q, err := runner.OpenQueue(ctx, app.Settings.Queue)
			if err != nil {
				return err
			}
			defer closeQueue(q)
			return q.Put(ctx, body)
		},
	}
	cmd.Flags().String("consumer", "consumer-0", "Consumer ID to report as.")
	cmd.Flags().Float64("throughput", 0, "Throughput in MB/s.")
	cmd.Flags().Int("producers", 0, "Producer count the reading was taken at.")
	return cmd
}
