// Package main provides the CLI entry point for offloadbench, which
// measures the latency of offloading OCR and sequence alignment work to
// a remote edge or server tier.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/weiihann/offloadbench/client"
	"github.com/weiihann/offloadbench/config"
	"github.com/weiihann/offloadbench/engine"
	"github.com/weiihann/offloadbench/metrics"
	"github.com/weiihann/offloadbench/report"
	"github.com/weiihann/offloadbench/server"
	"github.com/weiihann/offloadbench/stager"
	"github.com/weiihann/offloadbench/task"
)

const clientUsage = `Please use format for arguments:
	client [Edge IPV4] [FTP Port]
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("offloadbench failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "offloadbench",
		Short: "Edge offloading latency benchmark",
		Long: `Offloadbench stages benchmark inputs from an edge FTP server, runs
text recognition or Smith-Waterman alignment through an external engine,
and streams the timed results to a peer over a single TCP connection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newClientCmd(logger))
	root.AddCommand(newServerCmd(logger))

	return root
}

type clientFlags struct {
	configPath     string
	port           int
	test           string
	iterations     int
	policy         string
	connectTimeout time.Duration
	stagingDir     string
	tesseract      string
	tessdata       string
	aligner        string
	transmission   string
	metricsAddr    string
	outputJSON     bool
}

func newClientCmd(logger *slog.Logger) *cobra.Command {
	var f clientFlags

	cmd := &cobra.Command{
		Use:   "client [Edge IPV4] [FTP Port]",
		Short: "Run a benchmark and send the results to the peer",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				fmt.Fprint(cmd.OutOrStdout(), clientUsage)
				return nil
			}

			cfg, err := clientConfig(cmd, f, args)
			if err != nil {
				return err
			}

			return runClient(cmd.Context(), logger, cmd.OutOrStdout(), cfg, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "",
		"Path to a YAML benchmark configuration")
	flags.IntVar(&f.port, "port", config.DefaultPort,
		"Peer port receiving result frames")
	flags.StringVar(&f.test, "test", task.TestOCR,
		"Benchmark to run: ocr (1) or alignment (2)")
	flags.IntVar(&f.iterations, "iterations", config.DefaultIterations,
		"Number of iterations or repetitions")
	flags.StringVar(&f.policy, "policy", string(task.PolicyContinue),
		"What a failed repetition does to the run: continue or abort")
	flags.DurationVar(&f.connectTimeout, "connect-timeout", client.DefaultConnectTimeout,
		"Timeout for the initial peer connection")
	flags.StringVar(&f.stagingDir, "staging-dir", "",
		"Directory receiving staged input files (default: working directory)")
	flags.StringVar(&f.tesseract, "tesseract", "tesseract",
		"Path to the tesseract binary")
	flags.StringVar(&f.tessdata, "tessdata", engine.DefaultTessdata,
		"Tesseract data directory")
	flags.StringVar(&f.aligner, "aligner", "smith-waterman",
		"Path to the Smith-Waterman binary")
	flags.StringVar(&f.transmission, "transmission", "compact",
		"Result framing: compact (one frame per batch) or individual")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address during the run")
	flags.BoolVar(&f.outputJSON, "json", false,
		"Output results as JSON instead of table")

	return cmd
}

// clientConfig layers positional arguments and explicitly set flags over
// the configuration file.
func clientConfig(cmd *cobra.Command, f clientFlags, args []string) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}

	cfg.Peer = args[0]

	cfg.FTPPort, err = strconv.Atoi(args[1])
	if err != nil {
		return cfg, fmt.Errorf("parse ftp port %q: %w", args[1], err)
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = f.port
	}
	if flags.Changed("test") {
		cfg.Test = f.test
	}
	if flags.Changed("iterations") {
		cfg.Iterations = f.iterations
	}
	if flags.Changed("policy") {
		cfg.Policy = f.policy
	}
	if flags.Changed("connect-timeout") {
		cfg.ConnectTimeout = f.connectTimeout
	}
	if flags.Changed("staging-dir") {
		cfg.StagingDir = f.stagingDir
	}
	if flags.Changed("tesseract") {
		cfg.OCR.Binary = f.tesseract
	}
	if flags.Changed("tessdata") {
		cfg.OCR.Tessdata = f.tessdata
	}
	if flags.Changed("aligner") {
		cfg.Alignment.Binary = f.aligner
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func runClient(
	ctx context.Context,
	logger *slog.Logger,
	out io.Writer,
	cfg config.Config,
	f clientFlags,
) error {
	logger.InfoContext(ctx, "starting benchmark",
		slog.String("peer", cfg.Peer),
		slog.Int("port", cfg.Port),
		slog.Int("ftp_port", cfg.FTPPort),
		slog.String("test", cfg.Test),
		slog.Int("iterations", cfg.Iterations),
		slog.String("policy", cfg.Policy),
	)

	transmission, err := client.ParseTransmission(f.transmission)
	if err != nil {
		return err
	}

	recorder := metrics.New()

	if f.metricsAddr != "" {
		stop, err := serveMetrics(logger, f.metricsAddr, recorder.Handler())
		if err != nil {
			return err
		}
		defer stop()
	}

	fetcher := stager.NewFTP(stager.FTPConfig{
		Host:     cfg.Peer,
		Port:     cfg.FTPPort,
		User:     cfg.FTPUser,
		Password: cfg.FTPPassword,
		Timeout:  cfg.ConnectTimeout,
		Dir:      cfg.StagingDir,
	}, logger)
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("closing ftp session", slog.String("error", err.Error()))
		}
	}()

	// Validate has already accepted the policy.
	policy, _ := task.ParsePolicy(cfg.Policy)

	runner, err := task.New(cfg.Test, task.Setup{
		Common: task.Common{
			Iterations: cfg.Iterations,
			Policy:     policy,
			Fetcher:    fetcher,
			Logger:     logger,
		},
		OCR: task.OCRConfig{Image: cfg.OCR.Image},
		Alignment: task.AlignmentConfig{
			Files: cfg.Alignment.Files,
			M:     cfg.Alignment.M,
			K:     cfg.Alignment.K,
		},
		Recognizer: engine.NewTesseract(engine.TesseractConfig{
			Binary:   cfg.OCR.Binary,
			Tessdata: cfg.OCR.Tessdata,
			DPI:      cfg.OCR.DPI,
			Env:      cfg.OCR.Env,
		}, logger),
		Aligner: engine.NewSmithWaterman(cfg.Alignment.Binary, cfg.Alignment.Env, logger),
	})
	if err != nil {
		return fmt.Errorf("select task: %w", err)
	}

	driver := client.New(client.Config{
		Address:        cfg.Peer,
		Port:           cfg.Port,
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger,
		client.WithObserver(recorder),
		client.WithTransmission(transmission),
	)

	rep, runErr := driver.Run(ctx, runner)

	if rep != nil && rep.Result != nil {
		recorder.ObserveResult(rep.Result)

		results := []*task.Result{rep.Result}

		var reportErr error
		if f.outputJSON {
			reportErr = report.GenerateJSON(out, results)
		} else {
			reportErr = report.Generate(out, results)
		}

		if reportErr != nil {
			logger.Error("generate report", slog.String("error", reportErr.Error()))
		}
	}

	if runErr != nil {
		return runErr
	}

	logger.InfoContext(ctx, "benchmark complete",
		slog.String("state", rep.State.String()),
		slog.Int("frames", rep.Frames),
	)

	return nil
}

// serveMetrics exposes handler on addr until the returned stop function
// is called.
func serveMetrics(logger *slog.Logger, addr string, handler http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = srv.Shutdown(ctx)
	}, nil
}

func newServerCmd(logger *slog.Logger) *cobra.Command {
	var (
		listen     string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Receive result frames from one client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := server.Listen(listen, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			sess, err := srv.Serve(cmd.Context())
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			if outputJSON {
				return report.GenerateSessionJSON(cmd.OutOrStdout(), sess)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "received %d frames (%d results) from %s in %s\n",
				len(sess.Frames), len(sess.Results()), sess.Remote, sess.Elapsed)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listen, "listen", ":"+strconv.Itoa(config.DefaultPort),
		"Address to listen on")
	flags.BoolVar(&outputJSON, "json", false,
		"Output the received session as JSON")

	return cmd
}
