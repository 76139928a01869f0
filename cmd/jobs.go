package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/spf13/cobra"
)

// jobsCmd groups job inspection commands
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and retry background jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Long: `List jobs newest first.

Example:
  annotation-api jobs list --status failed
  annotation-api jobs list --queue media --limit 50`,
	RunE: runJobsList,
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Requeue a failed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRetry,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRetryCmd)

	jobsListCmd.Flags().String("status", "", "filter by status")
	jobsListCmd.Flags().String("queue", "", "filter by queue")
	jobsListCmd.Flags().String("type", "", "filter by job type")
	jobsListCmd.Flags().Int("limit", 20, "maximum number of jobs")
}

func jobService(cmd *cobra.Command) (jobs.Service, func(), error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return jobs.NewService(jobs.NewRepository(db.DB), logger), func() { _ = db.Close() }, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	queue, _ := cmd.Flags().GetString("queue")
	jobType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	svc, closeDB, err := jobService(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	list, err := svc.ListJobs(cmd.Context(), jobs.ListFilter{
		Status: models.JobStatus(status),
		Queue:  queue,
		Type:   models.JobType(jobType),
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	printJobs(cmd.OutOrStdout(), list)
	return nil
}

func printJobs(out io.Writer, list []*models.Job) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}

	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(job.ID), 10),
			string(job.Type),
			job.Queue,
			string(job.Status),
			fmt.Sprintf("%d%%", job.Progress),
			fmt.Sprintf("%d/%d", job.RetryCount, job.MaxRetries),
			job.CreatedAt.Format(time.DateTime),
			job.ErrorCode,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Type", "Queue", "Status", "Progress", "Retries", "Created", "Error"},
		rows, 0, 4))
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid job id %q", args[0])
	}

	svc, closeDB, err := jobService(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	job, err := svc.RetryFailedJob(cmd.Context(), uint(id))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %d requeued on %s (retry %d/%d)\n", job.ID, job.Queue, job.RetryCount, job.MaxRetries)
	return nil
}
