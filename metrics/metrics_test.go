package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/weiihann/offloadbench/frame"
	"github.com/weiihann/offloadbench/task"
	"github.com/weiihann/offloadbench/timer"
)

func TestFrameWritten(t *testing.T) {
	r := New()

	r.FrameWritten(frame.KindResult)
	r.FrameWritten(frame.KindResult)
	r.FrameWritten(frame.KindTermination)

	if got := testutil.ToFloat64(r.frames.WithLabelValues("result")); got != 2 {
		t.Errorf("result frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.frames.WithLabelValues("termination")); got != 1 {
		t.Errorf("termination frames = %v, want 1", got)
	}
}

func TestObserveResult(t *testing.T) {
	r := New()

	r.ObserveResult(&task.Result{
		Task: task.TestAlignment,
		Laps: map[string]timer.Record{
			task.StepStage: {Laps: []time.Duration{time.Millisecond, 2 * time.Millisecond}},
			task.StepAlign: {Laps: []time.Duration{time.Second}},
		},
		Failures: []task.Failure{{Iteration: 1, Step: task.StepStage, Error: "timeout"}},
	})
	r.ObserveResult(nil)

	if n := testutil.CollectAndCount(r.laps); n != 2 {
		t.Errorf("lap series = %d, want 2", n)
	}
	if got := testutil.ToFloat64(r.failures.WithLabelValues(task.TestAlignment, task.StepStage)); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.FrameWritten(frame.KindTermination)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `offloadbench_frames_written_total{kind="termination"} 1`) {
		t.Errorf("metrics output missing frame counter:\n%s", body)
	}
}
