package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"jobstats/internal/backend"
	"jobstats/internal/config"
	"jobstats/internal/store"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_uuid]",
	Short: "Show a job and its attempts",
	Long:  `Print the recorded state of a job (queued, processing, success, failed) followed by one row per attempt with its waiting and handling durations.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, _ *config.Config, b *backend.Backend) error {
			job, err := b.Stats.GetJobByUUID(ctx, args[0])
			if errors.Is(err, store.ErrJobNotFound) {
				return fmt.Errorf("no statistics recorded for job %s", args[0])
			}
			if err != nil {
				return err
			}

			attempts, err := b.Stats.ListAttempts(ctx, job.ID)
			if err != nil {
				return err
			}

			printJob(cmd, job, attempts)
			return nil
		})
	},
}

func printJob(cmd *cobra.Command, job *store.Job, attempts []store.Attempt) {
	cmd.Printf("%s %sJob Statistics%s\n", statusIcon(string(job.Status)), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sUUID:%s        %s\n", colorDim, colorReset, job.UUID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(string(job.Status)))
	cmd.Printf("%sConnection:%s  %s\n", colorDim, colorReset, orDash(job.Connection))
	cmd.Printf("%sQueue:%s       %s\n", colorDim, colorReset, orDash(job.Queue))
	cmd.Printf("%sQueued:%s      %s\n", colorDim, colorReset, formatTimeWithRelative(&job.QueuedAt))
	cmd.Printf("%sAttempts:%s    %d\n", colorDim, colorReset, len(attempts))

	if len(attempts) == 0 {
		return
	}

	cmd.Println()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tSTATUS\tWAITED\tHANDLED\tSTARTED\tERROR")
	for _, a := range attempts {
		handled := "-"
		if a.HandlingDuration != nil {
			handled = formatDuration(seconds(*a.HandlingDuration))
		}
		errMsg := ""
		if a.ExceptionMessage != nil {
			errMsg = truncate(*a.ExceptionMessage, 50)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.AttemptNumber,
			a.Status,
			formatDuration(seconds(a.WaitingDuration)),
			handled,
			a.StartedAt.Format(time.RFC3339),
			errMsg,
		)
	}
	w.Flush()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
