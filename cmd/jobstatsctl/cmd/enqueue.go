package cmd

import (
	"context"

	"jobstats/internal/backend"
	"jobstats/internal/config"
	"jobstats/internal/worker"

	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Push a built-in job onto the queue",
}

var enqueueSleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Enqueue a tracked job that sleeps and optionally fails",
	Long:  `Enqueue the built-in sleep job. It sleeps for --millis on every attempt and fails its first --fail-attempts attempts, which makes it useful for checking that retries show up in the statistics.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		millis, _ := cmd.Flags().GetInt("millis")
		failAttempts, _ := cmd.Flags().GetInt("fail-attempts")
		maxTries, _ := cmd.Flags().GetInt("max-tries")

		return withBackend(cmd, func(ctx context.Context, cfg *config.Config, b *backend.Backend) error {
			client := worker.NewClient(b.Queue, b.Stats, worker.ClientConfig{
				Connection: cfg.QueueConnection,
				Queue:      cfg.QueueName,
				MaxTries:   maxTries,
			})

			jobUUID, err := client.Enqueue(ctx, worker.SleepJobName, &worker.SleepJob{
				Millis:       millis,
				FailAttempts: failAttempts,
			})
			if err != nil {
				return err
			}

			cmd.Printf("Job enqueued: %s\n", jobUUID)
			cmd.Printf("Follow it with: jobstatsctl status %s\n", jobUUID)
			return nil
		})
	},
}

func init() {
	enqueueSleepCmd.Flags().Int("millis", 100, "How long each attempt sleeps")
	enqueueSleepCmd.Flags().Int("fail-attempts", 0, "Number of leading attempts that fail")
	enqueueSleepCmd.Flags().Int("max-tries", worker.DefaultMaxTries, "Maximum attempts before the job fails for good")

	enqueueCmd.AddCommand(enqueueSleepCmd)
	rootCmd.AddCommand(enqueueCmd)
}
