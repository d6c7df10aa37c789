package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weiihann/offloadbench/engine"
	"github.com/weiihann/offloadbench/stager"
)

// FailedOutput replaces the result of a recognition pass that failed.
const FailedOutput = "OCR FAILED!"

// DefaultImage is the image staged by the OCR benchmark.
const DefaultImage = "woahman.png"

// OCRConfig configures the text recognition benchmark.
type OCRConfig struct {
	Image string
}

// OCR stages one image and recognizes it Iterations times, sending all
// outputs in a single frame.
type OCR struct {
	common Common
	cfg    OCRConfig
	engine engine.Recognizer
	logger *slog.Logger
}

// NewOCR creates the text recognition strategy.
func NewOCR(c Common, cfg OCRConfig, rec engine.Recognizer) *OCR {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}

	return &OCR{
		common: c,
		cfg:    cfg,
		engine: rec,
		logger: c.Logger.With(slog.String("task", TestOCR)),
	}
}

func (o *OCR) Name() string { return TestOCR }

// Run stages the image, then performs exactly Iterations recognitions
// in order. An engine failure contributes FailedOutput for that pass. A
// staging failure skips the whole benchmark and, under PolicyAbort, is
// returned.
func (o *OCR) Run(ctx context.Context, emit Emitter) (*Result, error) {
	n := o.common.Iterations
	if n < 1 {
		return nil, ErrNoIterations
	}

	res := newResult(TestOCR, n)
	tm := o.common.newTimer()

	tm.Start()
	image, err := o.common.Fetcher.Fetch(ctx, o.cfg.Image)
	if err != nil {
		o.logger.Error("grabbing image failed",
			slog.String("image", o.cfg.Image),
			slog.String("error", err.Error()),
		)

		for i := 0; i < n; i++ {
			res.skip(i, StepStage, err)
		}

		if o.common.Policy == PolicyAbort {
			return res, err
		}

		return res, nil
	}
	defer stager.Remove(o.logger, image)

	res.addLap(StepStage, tm.Lap())
	tm.Stop("ocr staging")

	tm.Start()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("ocr iteration %d: %w", i, err)
		}

		out, err := o.engine.Recognize(ctx, image)
		if err != nil {
			o.logger.Error("recognition failed",
				slog.Int("iteration", i),
				slog.String("error", err.Error()),
			)

			out = FailedOutput
			res.EngineFailures++
		}

		res.Outputs = append(res.Outputs, out)
		res.addLap(StepRecognize, tm.Lap())
	}
	tm.Stop("ocr benchmark")

	tm.Start()
	if err := emit(ctx, res.Outputs); err != nil {
		return res, err
	}
	res.addLap(StepTransmit, tm.Lap())
	tm.Stop("compact transmission")

	res.Frames++

	return res, nil
}
