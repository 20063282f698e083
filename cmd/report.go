package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gang-sim/gang-sim/sim/trace"
)

var reportDB string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the runs stored in a results database",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := trace.OpenStore(reportDB)
		if err != nil {
			logrus.Fatalf("Failed to open results db: %v", err)
		}
		defer func() { _ = store.Close() }()
		if err := writeReport(cmd.Context(), os.Stdout, store); err != nil {
			logrus.Fatalf("Report failed: %v", err)
		}
	},
}

// writeReport prints one block per stored run, most recent first.
func writeReport(ctx context.Context, w io.Writer, store *trace.Store) error {
	runs, err := store.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	for _, r := range runs {
		status := r.EndReason
		if r.FinishedAt.IsZero() {
			status = "unfinished"
		}
		fmt.Fprintf(w, "run %s (%s, seed %d, %d gangs) started %s: %s\n",
			r.ID, r.Mode, r.Seed, r.NumGangs, r.StartedAt.Format("2006-01-02 15:04:05"), status)
		fmt.Fprintf(w, "  ticks %d  successful %d  thwarted %d  executed %d\n",
			r.ElapsedTicks, r.SuccessfulPlans, r.ThwartedPlans, r.ExecutedAgents)

		outcomes, err := store.OutcomeCounts(ctx, r.ID)
		if err != nil {
			return err
		}
		events, err := store.EventCounts(ctx, r.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  plans   %s\n", formatCounts(outcomes))
		if _, err := fmt.Fprintf(w, "  events  %s\n", formatCounts(events)); err != nil {
			return err
		}
	}
	return nil
}

// formatCounts renders a count map as "k=v" pairs in key order.
func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", k, m[k])
	}
	return s
}

func init() {
	reportCmd.Flags().StringVar(&reportDB, "results-db", "", "SQLite results database")
	_ = reportCmd.MarkFlagRequired("results-db")

	rootCmd.AddCommand(reportCmd)
}
