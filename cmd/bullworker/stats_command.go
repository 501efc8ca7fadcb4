package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BranchIntl/bullworker/engines"
	"github.com/BranchIntl/bullworker/queue"
	redisStats "github.com/BranchIntl/bullworker/statistics/redis"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var failures int64

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and worker statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			client, err := queue.NewClient(engines.QueueOptions(cfg))
			if err != nil {
				return err
			}
			if err := client.Connect(cmd.Context()); err != nil {
				return err
			}
			defer client.Close()

			counts, err := client.Counts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queue %s\n", cfg.Queue.Prefix)
			fmt.Fprintln(out, renderTable(
				[]string{"Waiting", "Active", "Completed", "Failed"},
				[][]string{{
					humanize.Comma(counts.Waiting),
					humanize.Comma(counts.Active),
					humanize.Comma(counts.Completed),
					humanize.Comma(counts.Failed),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))

			stats := engines.NewStatistics(cfg)
			if err := stats.Connect(cmd.Context()); err != nil {
				return err
			}
			defer stats.Close()

			global, err := stats.GetGlobalStats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\nWorkers (%s)\n", stats.Type())
			names := make([]string, 0, len(global.QueueStats))
			for name := range global.QueueStats {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, 0, len(names)+1)
			for _, name := range names {
				qs := global.QueueStats[name]
				rows = append(rows, []string{
					name,
					strconv.FormatInt(qs.Workers, 10),
					humanize.Comma(qs.Processed),
					humanize.Comma(qs.Failed),
				})
			}
			rows = append(rows, []string{
				"total",
				strconv.FormatInt(global.ActiveWorkers, 10),
				humanize.Comma(global.TotalProcessed),
				humanize.Comma(global.TotalFailed),
			})
			fmt.Fprintln(out, renderTable(
				[]string{"Job type", "Workers", "Processed", "Failed"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))

			if failures <= 0 {
				return nil
			}
			recorder, ok := stats.(*redisStats.RedisStatistics)
			if !ok {
				return nil
			}
			records, err := recorder.Failures(cmd.Context(), failures)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "\nRecent failures")
			failureRows := make([][]string, 0, len(records))
			for _, record := range records {
				failureRows = append(failureRows, []string{
					stringField(record, "failed_at"),
					stringField(record, "job"),
					stringField(record, "queue"),
					truncate(stringField(record, "error"), 80),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Failed at", "Job", "Job type", "Error"}, failureRows, nil))
			return nil
		},
	}

	cmd.Flags().Int64Var(&failures, "failures", 0, "Also list the N most recent failures")
	return cmd
}

func stringField(record map[string]interface{}, key string) string {
	switch v := record[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
