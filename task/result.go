package task

import (
	"time"

	"github.com/weiihann/offloadbench/timer"
)

// Failure describes one repetition that did not contribute a result.
type Failure struct {
	Iteration int    `json:"iteration"`
	Step      string `json:"step"`
	Error     string `json:"error"`
}

// Result is the outcome of one benchmark invocation.
//
// len(Outputs)+Skipped equals Iterations when the run finished.
type Result struct {
	Task           string                  `json:"task"`
	Iterations     int                     `json:"iterations"`
	Outputs        []string                `json:"outputs"`
	Laps           map[string]timer.Record `json:"laps"`
	Skipped        int                     `json:"skipped"`
	EngineFailures int                     `json:"engine_failures"`
	Frames         int                     `json:"frames"`
	Failures       []Failure               `json:"failures,omitempty"`
}

func newResult(task string, iterations int) *Result {
	return &Result{
		Task:       task,
		Iterations: iterations,
		Outputs:    make([]string, 0, iterations),
		Laps:       make(map[string]timer.Record),
	}
}

func (r *Result) addLap(step string, d time.Duration) {
	rec := r.Laps[step]
	rec.Laps = append(rec.Laps, d)
	rec.Total += d
	r.Laps[step] = rec
}

func (r *Result) skip(iteration int, step string, err error) {
	r.Skipped++
	r.Failures = append(r.Failures, Failure{
		Iteration: iteration,
		Step:      step,
		Error:     err.Error(),
	})
}

// Complete reports whether every iteration was accounted for.
func (r *Result) Complete() bool {
	return len(r.Outputs)+r.Skipped == r.Iterations
}

// Steps returns the recorded lap steps in execution order.
func (r *Result) Steps() []string {
	order := []string{StepStage, StepRecognize, StepAlign, StepTransmit}
	steps := make([]string, 0, len(r.Laps))

	for _, s := range order {
		if _, ok := r.Laps[s]; ok {
			steps = append(steps, s)
		}
	}

	return steps
}
