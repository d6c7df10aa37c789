// Package config loads benchmark run settings from YAML. Values missing
// from the file keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weiihann/offloadbench/engine"
	"github.com/weiihann/offloadbench/task"
)

// Defaults shared with the edge and server deployments.
const (
	DefaultPort       = 5000
	DefaultFTPPort    = 2221
	DefaultIterations = 100
)

// Config describes one client run.
type Config struct {
	Peer           string        `yaml:"peer"`
	Port           int           `yaml:"port"`
	FTPPort        int           `yaml:"ftp_port"`
	FTPUser        string        `yaml:"ftp_user,omitempty"`
	FTPPassword    string        `yaml:"ftp_password,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Test           string        `yaml:"test"`
	Iterations     int           `yaml:"iterations"`
	Policy         string        `yaml:"policy"`
	StagingDir     string        `yaml:"staging_dir,omitempty"`
	OCR            OCR           `yaml:"ocr"`
	Alignment      Alignment     `yaml:"alignment"`
}

// OCR configures the text recognition benchmark.
type OCR struct {
	Image    string   `yaml:"image"`
	Tessdata string   `yaml:"tessdata"`
	DPI      int      `yaml:"dpi"`
	Binary   string   `yaml:"binary"`
	Env      []string `yaml:"env,omitempty"`
}

// Alignment configures the sequence alignment benchmark.
type Alignment struct {
	Files  task.AlignmentFiles `yaml:"files"`
	M      int                 `yaml:"m"`
	K      int                 `yaml:"k"`
	Binary string              `yaml:"binary"`
	Env    []string            `yaml:"env,omitempty"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		FTPPort:        DefaultFTPPort,
		ConnectTimeout: 5 * time.Second,
		Test:           task.TestOCR,
		Iterations:     DefaultIterations,
		Policy:         string(task.PolicyContinue),
		OCR: OCR{
			Image:    task.DefaultImage,
			Tessdata: engine.DefaultTessdata,
			DPI:      engine.DefaultDPI,
			Binary:   "tesseract",
		},
		Alignment: Alignment{
			Files:  task.DefaultAlignmentFiles(),
			M:      1,
			K:      1,
			Binary: "smith-waterman",
		},
	}
}

// Load reads path over the defaults. The result is not validated, since
// the peer and ports usually come from the command line afterwards; call
// Validate once every layer is applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// Validate checks that the configuration can drive a run.
func (c Config) Validate() error {
	var errs []error

	if c.Peer == "" {
		errs = append(errs, errors.New("peer address is required"))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.FTPPort < 1 || c.FTPPort > 65535 {
		errs = append(errs, fmt.Errorf("ftp port %d out of range", c.FTPPort))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect timeout must be positive"))
	}
	if c.Iterations < 1 {
		errs = append(errs, task.ErrNoIterations)
	}
	if _, err := task.ParseTest(c.Test); err != nil {
		errs = append(errs, err)
	}
	if _, err := task.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
