// Package client drives one benchmark run against a remote peer: connect,
// run a task, stream its result frames and finish with the termination
// handshake.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/weiihann/offloadbench/frame"
	"github.com/weiihann/offloadbench/task"
)

// DefaultConnectTimeout bounds the initial connection attempt.
const DefaultConnectTimeout = 5 * time.Second

// ErrUsed is returned when Run is called on a driver that already ran.
var ErrUsed = errors.New("driver already ran; create a new one per run")

// Config is the immutable description of one run's connection.
type Config struct {
	Address        string
	Port           int
	ConnectTimeout time.Duration
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Transmission selects how a batch of results is put on the wire.
type Transmission int

const (
	// Compact sends a whole batch as one result frame.
	Compact Transmission = iota
	// Individual sends every result of a batch as its own frame.
	Individual
)

// ParseTransmission validates a transmission mode name.
func ParseTransmission(s string) (Transmission, error) {
	switch s {
	case "", "compact":
		return Compact, nil
	case "individual":
		return Individual, nil
	default:
		return Compact, fmt.Errorf("unknown transmission mode %q (want compact or individual)", s)
	}
}

// FrameObserver is notified after every frame written to the peer.
type FrameObserver interface {
	FrameWritten(kind frame.Kind)
}

// Option configures a Driver.
type Option func(*Driver)

// WithDialer replaces the function used to open the connection.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(d *Driver) {
		d.dial = dial
	}
}

// WithTransmission sets the transmission mode. The default is Compact.
func WithTransmission(t Transmission) Option {
	return func(d *Driver) {
		d.transmission = t
	}
}

// WithObserver registers a frame observer.
func WithObserver(o FrameObserver) Option {
	return func(d *Driver) {
		d.observer = o
	}
}

// Report is the outcome of a run.
type Report struct {
	Addr   string       `json:"addr"`
	State  State        `json:"state"`
	Frames int          `json:"frames"`
	Result *task.Result `json:"result,omitempty"`
}

// Driver owns a single connection for a single run. It performs no
// retries and no reconnection.
type Driver struct {
	cfg      Config
	logger   *slog.Logger
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	observer FrameObserver

	transmission Transmission
	state        State
}

// New creates a Driver in the Disconnected state.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Driver {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	d := &Driver{
		cfg:    cfg,
		logger: logger.With(slog.String("peer", cfg.addr())),
		state:  Disconnected,
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	d.dial = dialer.DialContext

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// State returns the driver's current state.
func (d *Driver) State() State {
	return d.state
}

func (d *Driver) transition(to State) {
	d.logger.Debug("state change",
		slog.String("from", d.state.String()),
		slog.String("to", to.String()),
	)
	d.state = to
}

// Run connects, runs runner once and performs the termination handshake.
//
// Connection and transmission failures leave the driver Failed without a
// handshake. A runner error that is not a transmission failure (for
// example a staging failure under the abort policy) still closes the
// session gracefully and is returned afterwards.
func (d *Driver) Run(ctx context.Context, runner task.Runner) (*Report, error) {
	if d.state != Disconnected {
		return nil, ErrUsed
	}

	report := &Report{Addr: d.cfg.addr()}
	defer func() { report.State = d.state }()

	conn, err := d.connect(ctx)
	if err != nil {
		d.transition(Failed)
		return report, err
	}

	fw := frame.NewWriter(conn)

	d.transition(Running)
	d.logger.InfoContext(ctx, "running benchmark", slog.String("task", runner.Name()))

	emit := func(_ context.Context, batch []string) error {
		groups := [][]string{batch}
		if d.transmission == Individual && len(batch) > 0 {
			groups = make([][]string, len(batch))
			for i := range batch {
				groups[i] = batch[i : i+1]
			}
		}

		for _, g := range groups {
			f, err := frame.ResultFrame(g)
			if err != nil {
				return fmt.Errorf("encode results: %w", err)
			}

			if err := d.write(fw, f); err != nil {
				return err
			}

			report.Frames++
		}

		return nil
	}

	result, runErr := runner.Run(ctx, emit)
	if result != nil {
		// Runners count batches; the wire count depends on the mode.
		result.Frames = report.Frames
	}
	report.Result = result

	var te *TransmissionError
	if errors.As(runErr, &te) {
		d.fail(conn, runErr)
		return report, runErr
	}

	if runErr != nil {
		d.logger.ErrorContext(ctx, "benchmark ended early",
			slog.String("task", runner.Name()),
			slog.String("error", runErr.Error()),
		)
	}

	d.transition(Finishing)

	if err := d.finish(conn, fw); err != nil {
		d.fail(conn, err)
		return report, err
	}

	d.transition(Closed)
	d.logger.InfoContext(ctx, "session closed", slog.Int("frames", report.Frames))

	if runErr != nil {
		return report, fmt.Errorf("run %s: %w", runner.Name(), runErr)
	}

	return report, nil
}

func (d *Driver) connect(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()

	conn, err := d.dial(ctx, "tcp", d.cfg.addr())
	if err != nil {
		d.logger.ErrorContext(ctx, "connect failed", slog.String("error", err.Error()))
		return nil, &ConnectError{Addr: d.cfg.addr(), Err: err}
	}

	d.transition(Connected)
	d.logger.InfoContext(ctx, "connected")

	return conn, nil
}

func (d *Driver) write(fw *frame.Writer, f frame.Frame) error {
	if err := fw.Write(f); err != nil {
		return &TransmissionError{Addr: d.cfg.addr(), Op: "write " + f.Kind.String() + " frame", Err: err}
	}

	if d.observer != nil {
		d.observer.FrameWritten(f.Kind)
	}

	return nil
}

// finish sends the sentinel, closes the write half and then the
// connection.
func (d *Driver) finish(conn net.Conn, fw *frame.Writer) error {
	d.transition(Closing)

	if err := d.write(fw, frame.TerminationFrame()); err != nil {
		return err
	}

	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return &TransmissionError{Addr: d.cfg.addr(), Op: "close output", Err: err}
		}
	}

	if err := conn.Close(); err != nil {
		return &TransmissionError{Addr: d.cfg.addr(), Op: "close", Err: err}
	}

	return nil
}

func (d *Driver) fail(conn net.Conn, err error) {
	d.logger.Error("transmission failed", slog.String("error", err.Error()))
	d.transition(Failed)

	// Release the socket; the handshake is not attempted.
	_ = conn.Close()
}
