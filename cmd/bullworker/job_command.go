package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BranchIntl/bullworker/engines"
	"github.com/BranchIntl/bullworker/job"
	"github.com/BranchIntl/bullworker/queue"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "job <id>",
		Short: "Show the state of a job",
		Args:  cobra.ExactArgs(1),
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

			j, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(jobView(j))
			}
			fmt.Fprint(out, renderJob(j))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func jobView(j *job.Job) map[string]interface{} {
	view := map[string]interface{}{
		"id":       j.ID,
		"type":     j.Type,
		"state":    j.State,
		"progress": j.Progress,
		"data":     j.Payload,
	}
	if j.ProcessedOn > 0 {
		view["processedOn"] = j.ProcessedOn
	}
	if j.FinishedOn > 0 {
		view["finishedOn"] = j.FinishedOn
	}
	if j.ReturnValue != nil {
		view["returnvalue"] = j.ReturnValue
	}
	if j.FailedReason != "" {
		view["failedReason"] = j.FailedReason
	}
	return view
}

func renderJob(j *job.Job) string {
	rows := [][]string{
		{"ID", j.ID},
		{"Type", j.Type},
		{"State", string(j.State)},
		{"Progress", strconv.Itoa(j.Progress) + "%"},
	}
	if j.ProcessedOn > 0 {
		rows = append(rows, []string{"Processed", formatMillis(j.ProcessedOn)})
	}
	if j.FinishedOn > 0 {
		rows = append(rows, []string{"Finished", formatMillis(j.FinishedOn)})
	}
	if j.ProcessedOn > 0 && j.FinishedOn >= j.ProcessedOn {
		elapsed := time.Duration(j.FinishedOn-j.ProcessedOn) * time.Millisecond
		rows = append(rows, []string{"Elapsed", elapsed.String()})
	}
	if url, ok := j.ReturnValue["url"].(string); ok {
		rows = append(rows, []string{"URL", url})
	}
	if ct, ok := j.ReturnValue["contentType"].(string); ok {
		rows = append(rows, []string{"Content type", ct})
	}
	if size, ok := numberValue(j.ReturnValue["fileSizeBytes"]); ok && size >= 0 {
		rows = append(rows, []string{"Size", humanize.Bytes(uint64(size))})
	}
	if j.FailedReason != "" {
		rows = append(rows, []string{"Failed reason", j.FailedReason})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil) + "\n"
}

func formatMillis(ms int64) string {
	t := time.UnixMilli(ms)
	return fmt.Sprintf("%s (%s)", t.UTC().Format(time.RFC3339), humanize.Time(t))
}

func numberValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
