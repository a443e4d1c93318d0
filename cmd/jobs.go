package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect analysis job history",
	Long:  "Commands for listing, viewing, and summarizing analysis jobs.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		owner, _ := cmd.Flags().GetString("owner")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.JobFilter{
			Status:  model.JobStatus(status),
			OwnerID: owner,
			Limit:   limit,
		}

		jobs, err := st.List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show the full result of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.Get(ctx, args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return eris.Errorf("job %s not found", args[0])
			}
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// -- jobs delete --

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a stored job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ok, err := st.Delete(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs delete")
		}
		if !ok {
			return eris.Errorf("job %s not found", args[0])
		}
		fmt.Fprintf(os.Stderr, "Deleted job %s.\n", args[0])
		return nil
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jobs, err := st.List(ctx, store.JobFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}

		formatJobStats(os.Stdout, computeJobStats(jobs))
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by job status (processing, completed, failed)")
	jobsListCmd.Flags().String("owner", "", "filter by owner ID")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

// jobStats holds aggregate statistics computed from a set of jobs.
type jobStats struct {
	Total         int
	Completed     int
	Failed        int
	Processing    int
	ByVerdict     map[string]int
	AvgConfidence float64
	AvgDurSecs    float64
}

func computeJobStats(jobs []model.AnalysisJob) jobStats {
	s := jobStats{ByVerdict: map[string]int{}}
	s.Total = len(jobs)

	var totalDur time.Duration
	var durCount int
	var totalConf float64

	for _, j := range jobs {
		switch j.Status {
		case model.JobStatusCompleted:
			s.Completed++
			totalConf += j.Confidence
			if j.Recommendation.Label != "" {
				s.ByVerdict[j.Recommendation.Label]++
			}
			if j.CompletedAt != nil {
				totalDur += j.CompletedAt.Sub(j.CreatedAt)
				durCount++
			}
		case model.JobStatusFailed:
			s.Failed++
		default:
			s.Processing++
		}
	}

	if s.Completed > 0 {
		s.AvgConfidence = totalConf / float64(s.Completed)
	}
	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, jobs []model.AnalysisJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMPANY\tSTATUS\tVERDICT\tSCORE\tCONF\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------\t-----\t----\t-------")

	for _, j := range jobs {
		company := j.CompanyName
		if company == "" {
			company = "-"
		}
		if len(company) > 30 {
			company = company[:27] + "..."
		}

		verdict := j.Recommendation.Label
		if verdict == "" {
			verdict = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\t%s\n",
			truncateID(j.JobID),
			company,
			j.Status,
			verdict,
			j.Recommendation.Score,
			j.Confidence,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatJobStats writes aggregate stats to w.
func formatJobStats(out io.Writer, s jobStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total jobs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", s.Completed)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Processing:\t%d\n", s.Processing)
	for _, label := range []string{
		model.VerdictStrongInvest, model.VerdictInvest, model.VerdictCaution, model.VerdictPass,
	} {
		if n := s.ByVerdict[label]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", label, n)
		}
	}
	if s.Completed > 0 {
		_, _ = fmt.Fprintf(w, "Avg confidence:\t%.2f\n", s.AvgConfidence)
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
