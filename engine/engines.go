package engine

import (
	"context"
	"log/slog"
	"strconv"
)

// Recognizer extracts the text shown in an image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// AlignInput names the staged files and tuning parameters of one
// alignment.
type AlignInput struct {
	Query         string
	Database      string
	Alphabet      string
	ScoringMatrix string
	M             int
	K             int
}

// Aligner computes a local sequence alignment.
type Aligner interface {
	Align(ctx context.Context, in AlignInput) (string, error)
}

// Defaults for the tesseract engine.
const (
	DefaultTessdata = "tessdata"
	DefaultDPI      = 1000
)

// TesseractConfig configures the tesseract command line engine.
type TesseractConfig struct {
	Binary   string
	Tessdata string
	DPI      int
	// Env entries (KEY=VALUE) are added to the engine's environment,
	// e.g. TESSDATA_PREFIX or OMP_THREAD_LIMIT.
	Env []string
}

// Tesseract recognizes text by running the tesseract CLI.
type Tesseract struct {
	cmd *Command
	cfg TesseractConfig
}

// NewTesseract creates a Recognizer backed by the tesseract binary.
func NewTesseract(cfg TesseractConfig, logger *slog.Logger) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Tessdata == "" {
		cfg.Tessdata = DefaultTessdata
	}
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}

	return &Tesseract{
		cmd: NewCommand("tesseract", cfg.Binary, cfg.Env, logger),
		cfg: cfg,
	}
}

// Args returns the command line used to recognize imagePath.
func (t *Tesseract) Args(imagePath string) []string {
	return []string{
		imagePath, "stdout",
		"--tessdata-dir", t.cfg.Tessdata,
		"--dpi", strconv.Itoa(t.cfg.DPI),
	}
}

// Recognize runs one OCR pass over imagePath.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	return t.cmd.Run(ctx, t.Args(imagePath)...)
}

// SmithWaterman aligns sequences by running an external Smith-Waterman
// binary that takes the four input paths followed by m and k.
type SmithWaterman struct {
	cmd *Command
}

// NewSmithWaterman creates an Aligner backed by binary, run with env
// added to the inherited environment.
func NewSmithWaterman(binary string, env []string, logger *slog.Logger) *SmithWaterman {
	if binary == "" {
		binary = "smith-waterman"
	}

	return &SmithWaterman{
		cmd: NewCommand("smith-waterman", binary, env, logger),
	}
}

// Args returns the command line for one alignment.
func (s *SmithWaterman) Args(in AlignInput) []string {
	return []string{
		in.Query, in.Database, in.Alphabet, in.ScoringMatrix,
		strconv.Itoa(in.M), strconv.Itoa(in.K),
	}
}

// Align runs one alignment.
func (s *SmithWaterman) Align(ctx context.Context, in AlignInput) (string, error) {
	return s.cmd.Run(ctx, s.Args(in)...)
}
