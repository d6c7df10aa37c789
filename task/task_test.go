package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/weiihann/offloadbench/engine"
	"github.com/weiihann/offloadbench/stager"
)

// fakeFetcher writes a small file for every fetch into dir. Names listed
// in fail return a TransferError.
type fakeFetcher struct {
	dir     string
	fail    map[string]bool
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, name string) (string, error) {
	f.fetched = append(f.fetched, name)

	if f.fail[name] {
		return "", &stager.TransferError{Name: name, Err: errors.New("550 not found")}
	}

	p := filepath.Join(f.dir, name)
	if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
		return "", err
	}

	return p, nil
}

type fakeRecognizer struct {
	outputs []string
	failAt  map[int]bool
	calls   int
}

func (r *fakeRecognizer) Recognize(_ context.Context, _ string) (string, error) {
	i := r.calls
	r.calls++

	if r.failAt[i] {
		return "", &engine.EngineError{Engine: "tesseract", Err: errors.New("exit status 1")}
	}

	return r.outputs[i%len(r.outputs)], nil
}

type fakeAligner struct {
	calls  int
	failAt map[int]bool
	inputs []engine.AlignInput
}

func (a *fakeAligner) Align(_ context.Context, in engine.AlignInput) (string, error) {
	i := a.calls
	a.calls++
	a.inputs = append(a.inputs, in)

	if a.failAt[i] {
		return "", &engine.EngineError{Engine: "smith-waterman", Err: errors.New("exit status 2")}
	}

	// Staged files must exist while the engine runs.
	for _, p := range []string{in.Query, in.Database, in.Alphabet, in.ScoringMatrix} {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("input %s missing: %w", p, err)
		}
	}

	return fmt.Sprintf("score=%d", i), nil
}

// recorder is an Emitter that keeps every batch.
type recorder struct {
	batches [][]string
	err     error
}

func (r *recorder) emit(_ context.Context, batch []string) error {
	if r.err != nil {
		return r.err
	}

	cp := make([]string, len(batch))
	copy(cp, batch)
	r.batches = append(r.batches, cp)

	return nil
}

func steppingClock() func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
}

func newCommon(t *testing.T, n int, f stager.Fetcher) Common {
	t.Helper()

	return Common{
		Iterations: n,
		Policy:     PolicyContinue,
		Fetcher:    f,
		Logger:     slog.Default(),
		Clock:      steppingClock(),
	}
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("staged files left behind: %d", len(entries))
	}
}

func TestOCRProducesOneOutputPerIteration(t *testing.T) {
	for _, n := range []int{1, 3, 25} {
		dir := t.TempDir()
		rec := &fakeRecognizer{outputs: []string{"foo", "bar", "baz"}}
		ocr := NewOCR(newCommon(t, n, &fakeFetcher{dir: dir}), OCRConfig{}, rec)

		var sent recorder
		res, err := ocr.Run(context.Background(), sent.emit)
		if err != nil {
			t.Fatalf("n=%d: Run failed: %v", n, err)
		}

		if len(res.Outputs) != n {
			t.Errorf("n=%d: outputs = %d", n, len(res.Outputs))
		}
		if got := len(res.Laps[StepRecognize].Laps); got != n {
			t.Errorf("n=%d: recognize laps = %d", n, got)
		}
		if rec.calls != n {
			t.Errorf("n=%d: engine calls = %d", n, rec.calls)
		}
		if len(sent.batches) != 1 || res.Frames != 1 {
			t.Errorf("n=%d: frames = %d, batches = %d", n, res.Frames, len(sent.batches))
		}
		if !res.Complete() {
			t.Errorf("n=%d: result incomplete: %+v", n, res)
		}

		assertEmpty(t, dir)
	}
}

func TestOCRExampleScenario(t *testing.T) {
	f := &fakeFetcher{dir: t.TempDir()}
	rec := &fakeRecognizer{outputs: []string{"foo", "bar", "baz"}}
	ocr := NewOCR(newCommon(t, 3, f), OCRConfig{}, rec)

	var sent recorder
	if _, err := ocr.Run(context.Background(), sent.emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := [][]string{{"foo", "bar", "baz"}}
	if !reflect.DeepEqual(sent.batches, want) {
		t.Errorf("batches = %q, want %q", sent.batches, want)
	}
	if !reflect.DeepEqual(f.fetched, []string{DefaultImage}) {
		t.Errorf("fetched = %q", f.fetched)
	}
}

func TestOCREngineFailureSubstitutes(t *testing.T) {
	rec := &fakeRecognizer{outputs: []string{"ok"}, failAt: map[int]bool{1: true}}
	ocr := NewOCR(newCommon(t, 3, &fakeFetcher{dir: t.TempDir()}), OCRConfig{}, rec)

	var sent recorder
	res, err := ocr.Run(context.Background(), sent.emit)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"ok", FailedOutput, "ok"}
	if !reflect.DeepEqual(res.Outputs, want) {
		t.Errorf("outputs = %q, want %q", res.Outputs, want)
	}
	if res.EngineFailures != 1 {
		t.Errorf("engine failures = %d, want 1", res.EngineFailures)
	}
}

func TestOCRStagingFailure(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{name: "continue", policy: PolicyContinue, wantErr: false},
		{name: "abort", policy: PolicyAbort, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{dir: t.TempDir(), fail: map[string]bool{DefaultImage: true}}
			c := newCommon(t, 4, f)
			c.Policy = tt.policy

			rec := &fakeRecognizer{outputs: []string{"x"}}

			var sent recorder
			res, err := NewOCR(c, OCRConfig{}, rec).Run(context.Background(), sent.emit)

			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if rec.calls != 0 {
				t.Errorf("engine ran %d times on a missing image", rec.calls)
			}
			if len(sent.batches) != 0 {
				t.Error("no frame should be sent when staging fails")
			}
			if res.Skipped != 4 || !res.Complete() {
				t.Errorf("skipped = %d complete = %v", res.Skipped, res.Complete())
			}
		})
	}
}

func TestOCRTransmitFailureIsReturned(t *testing.T) {
	boom := errors.New("broken pipe")
	ocr := NewOCR(newCommon(t, 2, &fakeFetcher{dir: t.TempDir()}), OCRConfig{},
		&fakeRecognizer{outputs: []string{"a"}})

	sent := recorder{err: boom}
	res, err := ocr.Run(context.Background(), sent.emit)

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if res.Frames != 0 {
		t.Errorf("frames = %d, want 0", res.Frames)
	}
}

func TestAlignmentRepetitions(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{dir: dir}
	al := &fakeAligner{}
	a := NewAlignment(newCommon(t, 2, f), AlignmentConfig{}, al)

	var sent recorder
	res, err := a.Run(context.Background(), sent.emit)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := [][]string{{"score=0"}, {"score=1"}}
	if !reflect.DeepEqual(sent.batches, want) {
		t.Errorf("batches = %q, want %q", sent.batches, want)
	}
	if res.Frames != 2 || len(res.Outputs) != 2 {
		t.Errorf("frames = %d outputs = %d", res.Frames, len(res.Outputs))
	}

	// Inputs are re-staged every repetition.
	if len(f.fetched) != 8 {
		t.Errorf("fetches = %d, want 8", len(f.fetched))
	}

	for _, step := range []string{StepStage, StepAlign, StepTransmit} {
		if got := len(res.Laps[step].Laps); got != 2 {
			t.Errorf("%s laps = %d, want 2", step, got)
		}
	}

	if !reflect.DeepEqual(res.Steps(), []string{StepStage, StepAlign, StepTransmit}) {
		t.Errorf("steps = %q", res.Steps())
	}

	in := al.inputs[0]
	if in.M != 1 || in.K != 1 {
		t.Errorf("m,k = %d,%d, want 1,1", in.M, in.K)
	}
	if filepath.Base(in.ScoringMatrix) != "scoringmatrix.txt" {
		t.Errorf("scoring matrix = %s", in.ScoringMatrix)
	}

	assertEmpty(t, dir)
}

func TestAlignmentFailedRepetitionContinues(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{dir: dir}
	al := &fakeAligner{failAt: map[int]bool{0: true}}
	a := NewAlignment(newCommon(t, 3, f), AlignmentConfig{}, al)

	var sent recorder
	res, err := a.Run(context.Background(), sent.emit)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sent.batches) != 2 {
		t.Errorf("batches = %d, want 2", len(sent.batches))
	}
	if res.Skipped != 1 || res.EngineFailures != 1 {
		t.Errorf("skipped = %d engine failures = %d", res.Skipped, res.EngineFailures)
	}
	if len(res.Failures) != 1 || res.Failures[0].Step != StepAlign || res.Failures[0].Iteration != 0 {
		t.Errorf("failures = %+v", res.Failures)
	}
	if !res.Complete() {
		t.Error("result should account for every repetition")
	}

	assertEmpty(t, dir)
}

// alignFunc adapts a function to engine.Aligner.
type alignFunc func(ctx context.Context, in engine.AlignInput) (string, error)

func (f alignFunc) Align(ctx context.Context, in engine.AlignInput) (string, error) {
	return f(ctx, in)
}

func TestAlignmentPlainEngineErrorSkipsRepetition(t *testing.T) {
	dir := t.TempDir()

	calls := 0
	al := alignFunc(func(context.Context, engine.AlignInput) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "score=7", nil
	})

	var sent recorder
	res, err := NewAlignment(newCommon(t, 2, &fakeFetcher{dir: dir}), AlignmentConfig{}, al).
		Run(context.Background(), sent.emit)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Outputs) != 1 || res.Skipped != 1 || res.EngineFailures != 1 {
		t.Errorf("outputs = %d skipped = %d engine failures = %d, want 1 each",
			len(res.Outputs), res.Skipped, res.EngineFailures)
	}
	if res.Frames != 1 || !res.Complete() {
		t.Errorf("frames = %d complete = %v", res.Frames, res.Complete())
	}
	if len(res.Failures) != 1 || res.Failures[0].Step != StepAlign {
		t.Errorf("failures = %+v", res.Failures)
	}

	assertEmpty(t, dir)
}

func TestAlignmentPlainStagingErrorSkipsRepetition(t *testing.T) {
	dir := t.TempDir()
	inner := &fakeFetcher{dir: dir}

	fetches := 0
	f := fetchFunc(func(ctx context.Context, name string) (string, error) {
		fetches++
		if fetches == 1 {
			return "", errors.New("disk full")
		}
		return inner.Fetch(ctx, name)
	})

	var sent recorder
	res, err := NewAlignment(newCommon(t, 2, f), AlignmentConfig{}, &fakeAligner{}).
		Run(context.Background(), sent.emit)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Outputs) != 1 || res.Skipped != 1 || res.Failures[0].Step != StepStage {
		t.Errorf("result = %+v", res)
	}
}

type fetchFunc func(ctx context.Context, name string) (string, error)

func (f fetchFunc) Fetch(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

func TestAlignmentStagingFailureAborts(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{dir: dir, fail: map[string]bool{"alphabet.txt": true}}
	c := newCommon(t, 3, f)
	c.Policy = PolicyAbort

	al := &fakeAligner{}

	var sent recorder
	res, err := NewAlignment(c, AlignmentConfig{}, al).Run(context.Background(), sent.emit)

	var te *stager.TransferError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransferError", err)
	}
	if al.calls != 0 {
		t.Errorf("aligner ran %d times", al.calls)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}

	// The two files staged before the failure are cleaned up.
	assertEmpty(t, dir)
}

func TestAlignmentTransmitFailureIsTerminal(t *testing.T) {
	boom := errors.New("connection reset")
	a := NewAlignment(newCommon(t, 5, &fakeFetcher{dir: t.TempDir()}), AlignmentConfig{}, &fakeAligner{})

	sent := recorder{err: boom}
	res, err := a.Run(context.Background(), sent.emit)

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if res.Skipped != 0 || len(res.Outputs) != 0 {
		t.Errorf("transmit failure must not be counted as a skipped repetition: %+v", res)
	}
}

func TestNew(t *testing.T) {
	base := Setup{
		Common:     Common{Iterations: 1, Fetcher: &fakeFetcher{dir: t.TempDir()}},
		Recognizer: &fakeRecognizer{outputs: []string{"x"}},
		Aligner:    &fakeAligner{},
	}

	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "1", want: TestOCR},
		{id: "ocr", want: TestOCR},
		{id: "OCR", want: TestOCR},
		{id: "sw", want: TestAlignment},
		{id: "2", want: TestAlignment},
		{id: "smith-waterman", want: TestAlignment},
		{id: "alignment", want: TestAlignment},
		{id: "3", wantErr: true},
	}

	for _, tt := range tests {
		r, err := New(tt.id, base)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) expected error", tt.id)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q) failed: %v", tt.id, err)
		}
		if r.Name() != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.id, r.Name(), tt.want)
		}
	}

	noIter := base
	noIter.Iterations = 0
	if _, err := New("ocr", noIter); !errors.Is(err, ErrNoIterations) {
		t.Errorf("err = %v, want ErrNoIterations", err)
	}

	noEngine := base
	noEngine.Aligner = nil
	if _, err := New("alignment", noEngine); err == nil {
		t.Error("expected error without an aligner")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyContinue {
		t.Errorf("ParsePolicy(\"\") = %q, %v", p, err)
	}
	if p, err := ParsePolicy("ABORT"); err != nil || p != PolicyAbort {
		t.Errorf("ParsePolicy(ABORT) = %q, %v", p, err)
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
