// Package report formats benchmark results into summary tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/weiihann/offloadbench/server"
	"github.com/weiihann/offloadbench/task"
)

// Generate writes a markdown summary of the given results.
func Generate(w io.Writer, results []*task.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)

	// Run overview.
	fmt.Fprintln(w, "| Task | Iterations | Results | Skipped "+
		"| Engine Failures | Frames |")
	fmt.Fprintln(w, "|------|------------|---------|---------"+
		"|-----------------|--------|")

	for _, r := range results {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %d |\n",
			r.Task,
			r.Iterations,
			len(r.Outputs),
			r.Skipped,
			r.EngineFailures,
			r.Frames,
		)
	}

	fmt.Fprintln(w)

	// Lap table.
	fmt.Fprintln(w, "| Task | Step | Laps | Min | Mean | Max | Total |")
	fmt.Fprintln(w, "|------|------|------|-----|------|-----|-------|")

	for _, r := range results {
		for _, step := range r.Steps() {
			s := r.Laps[step].Stats()

			fmt.Fprintf(w, "| %s | %s | %d | %s | %s | %s | %s |\n",
				r.Task,
				step,
				s.Count,
				formatDuration(s.Min),
				formatDuration(s.Mean),
				formatDuration(s.Max),
				formatDuration(s.Sum),
			)
		}
	}

	failures := 0
	for _, r := range results {
		failures += len(r.Failures)
	}

	if failures == 0 {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Task | Iteration | Step | Error |")
	fmt.Fprintln(w, "|------|-----------|------|-------|")

	for _, r := range results {
		for _, f := range r.Failures {
			fmt.Fprintf(w, "| %s | %d | %s | %s |\n",
				r.Task, f.Iteration, f.Step, f.Error)
		}
	}

	return nil
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []*task.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

// GenerateSessionJSON writes what a receiving server collected as JSON.
func GenerateSessionJSON(w io.Writer, sess *server.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(sess)
}

func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "-"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
