package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weiihann/offloadbench/engine"
	"github.com/weiihann/offloadbench/stager"
)

// AlignmentFiles names the remote inputs of one alignment.
type AlignmentFiles struct {
	Query         string `yaml:"query" json:"query"`
	Database      string `yaml:"database" json:"database"`
	Alphabet      string `yaml:"alphabet" json:"alphabet"`
	ScoringMatrix string `yaml:"scoring_matrix" json:"scoring_matrix"`
}

// DefaultAlignmentFiles are the inputs staged by the alignment benchmark.
func DefaultAlignmentFiles() AlignmentFiles {
	return AlignmentFiles{
		Query:         "smallQuery.txt",
		Database:      "database.txt",
		Alphabet:      "alphabet.txt",
		ScoringMatrix: "scoringmatrix.txt",
	}
}

func (f AlignmentFiles) names() []string {
	return []string{f.Query, f.Database, f.Alphabet, f.ScoringMatrix}
}

// AlignmentConfig configures the sequence alignment benchmark.
type AlignmentConfig struct {
	Files AlignmentFiles
	M     int
	K     int
}

// Alignment repeats stage, align and transmit Iterations times. Inputs
// are staged afresh for every repetition.
type Alignment struct {
	common Common
	cfg    AlignmentConfig
	engine engine.Aligner
	logger *slog.Logger
}

// NewAlignment creates the sequence alignment strategy. Unset file names
// fall back to DefaultAlignmentFiles and unset m and k to 1.
func NewAlignment(c Common, cfg AlignmentConfig, al engine.Aligner) *Alignment {
	def := DefaultAlignmentFiles()
	if cfg.Files.Query == "" {
		cfg.Files.Query = def.Query
	}
	if cfg.Files.Database == "" {
		cfg.Files.Database = def.Database
	}
	if cfg.Files.Alphabet == "" {
		cfg.Files.Alphabet = def.Alphabet
	}
	if cfg.Files.ScoringMatrix == "" {
		cfg.Files.ScoringMatrix = def.ScoringMatrix
	}
	if cfg.M == 0 {
		cfg.M = 1
	}
	if cfg.K == 0 {
		cfg.K = 1
	}

	return &Alignment{
		common: c,
		cfg:    cfg,
		engine: al,
		logger: c.Logger.With(slog.String("task", TestAlignment)),
	}
}

func (a *Alignment) Name() string { return TestAlignment }

// Run performs the repetitions. Any staging or alignment failure aborts
// only its repetition unless the policy is PolicyAbort; emit failures end
// the run.
func (a *Alignment) Run(ctx context.Context, emit Emitter) (*Result, error) {
	n := a.common.Iterations
	if n < 1 {
		return nil, ErrNoIterations
	}

	res := newResult(TestAlignment, n)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("alignment repetition %d: %w", i, err)
		}

		step, err := a.repetition(ctx, emit, res)
		if err == nil {
			continue
		}

		if step == StepTransmit {
			return res, err
		}

		a.logger.Error("repetition failed",
			slog.Int("iteration", i),
			slog.String("step", step),
			slog.String("error", err.Error()),
		)

		res.skip(i, step, err)
		if step == StepAlign {
			res.EngineFailures++
		}

		if a.common.Policy == PolicyAbort {
			return res, err
		}
	}

	return res, nil
}

// repetition runs one stage, align, transmit cycle and returns the step
// that failed, if any.
func (a *Alignment) repetition(ctx context.Context, emit Emitter, res *Result) (string, error) {
	staged := make([]string, 0, 4)
	defer func() { stager.Remove(a.logger, staged...) }()

	tm := a.common.newTimer()

	tm.Start()
	for _, name := range a.cfg.Files.names() {
		p, err := a.common.Fetcher.Fetch(ctx, name)
		if err != nil {
			return StepStage, err
		}
		staged = append(staged, p)
	}
	stage := tm.Lap()

	out, err := a.engine.Align(ctx, engine.AlignInput{
		Query:         staged[0],
		Database:      staged[1],
		Alphabet:      staged[2],
		ScoringMatrix: staged[3],
		M:             a.cfg.M,
		K:             a.cfg.K,
	})
	if err != nil {
		return StepAlign, err
	}
	align := tm.Lap()

	if err := emit(ctx, []string{out}); err != nil {
		return StepTransmit, err
	}
	transmit := tm.Lap()
	tm.Stop("smith-waterman repetition")

	res.Outputs = append(res.Outputs, out)
	res.addLap(StepStage, stage)
	res.addLap(StepAlign, align)
	res.addLap(StepTransmit, transmit)
	res.Frames++

	return "", nil
}
