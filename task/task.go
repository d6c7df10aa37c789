// Package task implements the benchmark strategies the client drives:
// repeated text recognition over one staged image, and staged sequence
// alignment.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/weiihann/offloadbench/engine"
	"github.com/weiihann/offloadbench/stager"
	"github.com/weiihann/offloadbench/timer"
)

// Test identifiers.
const (
	TestOCR       = "ocr"
	TestAlignment = "alignment"
)

// Lap step names recorded in Result.Laps.
const (
	StepRecognize = "recognize"
	StepStage     = "stage"
	StepAlign     = "align"
	StepTransmit  = "transmit"
)

// ErrNoIterations is returned when a runner is asked to run zero times.
var ErrNoIterations = errors.New("iteration count must be at least 1")

// Emitter sends one batch of results to the peer as a single frame.
// Any error it returns is terminal for the run.
type Emitter func(ctx context.Context, batch []string) error

// Runner executes one benchmark invocation.
type Runner interface {
	Name() string
	Run(ctx context.Context, emit Emitter) (*Result, error)
}

// Policy decides what a failed repetition does to the rest of the run.
type Policy string

const (
	// PolicyContinue logs the failure, counts the repetition as skipped
	// and moves on.
	PolicyContinue Policy = "continue"
	// PolicyAbort ends the run with the repetition's error.
	PolicyAbort Policy = "abort"
)

// ParsePolicy validates a policy name. Empty selects PolicyContinue.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case "", PolicyContinue:
		return PolicyContinue, nil
	case PolicyAbort:
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("unknown repetition policy %q (want continue or abort)", s)
	}
}

// ParseTest normalises a test selector. The numeric ids used on the
// command line of earlier deployments are accepted.
func ParseTest(id string) (string, error) {
	switch strings.ToLower(id) {
	case "1", TestOCR:
		return TestOCR, nil
	case "2", "sw", "smith-waterman", TestAlignment:
		return TestAlignment, nil
	default:
		return "", fmt.Errorf("unknown test %q", id)
	}
}

// Common holds settings shared by all strategies.
type Common struct {
	Iterations int
	Policy     Policy
	Fetcher    stager.Fetcher
	Logger     *slog.Logger
	// Clock overrides time.Now for lap timing.
	Clock func() time.Time
}

func (c Common) newTimer() *timer.Timer {
	opts := []timer.Option{timer.WithLogger(c.Logger)}
	if c.Clock != nil {
		opts = append(opts, timer.WithClock(c.Clock))
	}

	return timer.New(opts...)
}

func (c Common) validate() error {
	if c.Iterations < 1 {
		return ErrNoIterations
	}
	if c.Fetcher == nil {
		return errors.New("no file stager configured")
	}

	return nil
}

// Setup carries everything New needs to build a runner.
type Setup struct {
	Common
	OCR        OCRConfig
	Alignment  AlignmentConfig
	Recognizer engine.Recognizer
	Aligner    engine.Aligner
}

// New returns the runner selected by test.
func New(test string, s Setup) (Runner, error) {
	id, err := ParseTest(test)
	if err != nil {
		return nil, err
	}

	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Policy == "" {
		s.Policy = PolicyContinue
	}

	if err := s.Common.validate(); err != nil {
		return nil, err
	}

	switch id {
	case TestOCR:
		if s.Recognizer == nil {
			return nil, errors.New("ocr test needs a recognizer")
		}
		return NewOCR(s.Common, s.OCR, s.Recognizer), nil
	default:
		if s.Aligner == nil {
			return nil, errors.New("alignment test needs an aligner")
		}
		return NewAlignment(s.Common, s.Alignment, s.Aligner), nil
	}
}
