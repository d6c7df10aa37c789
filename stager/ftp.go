package stager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

// Default credentials of the staging server's benchmark account.
const (
	DefaultUser     = "user"
	DefaultPassword = ""
)

// FTPConfig describes how to reach the staging server.
type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
	// Dir receives the staged copies. Empty means the working directory.
	Dir string
}

func (c FTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// session is the subset of an FTP control connection used for staging.
type session interface {
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type dialFunc func(ctx context.Context, cfg FTPConfig) (session, error)

// ftpSession adapts *ftp.ServerConn to session.
type ftpSession struct {
	conn *ftp.ServerConn
}

func (s ftpSession) Retr(path string) (io.ReadCloser, error) {
	return s.conn.Retr(path)
}

func (s ftpSession) Quit() error {
	return s.conn.Quit()
}

func dialFTP(ctx context.Context, cfg FTPConfig) (session, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if cfg.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(cfg.Timeout))
	}

	conn, err := ftp.Dial(cfg.addr(), opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.addr(), err)
	}

	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("login as %s: %w", cfg.User, err)
	}

	return ftpSession{conn: conn}, nil
}

// FTP stages files over one lazily opened FTP control connection.
// It is not safe for concurrent use.
type FTP struct {
	cfg    FTPConfig
	logger *slog.Logger
	dial   dialFunc
	sess   session
}

// NewFTP creates an FTP fetcher. No connection is made until the first
// Fetch.
func NewFTP(cfg FTPConfig, logger *slog.Logger) *FTP {
	if cfg.User == "" {
		cfg.User = DefaultUser
		cfg.Password = DefaultPassword
	}

	return &FTP{
		cfg:    cfg,
		logger: logger.With(slog.String("ftp", cfg.addr())),
		dial:   dialFTP,
	}
}

// Fetch retrieves name from the server into the staging directory,
// overwriting any previous copy.
func (f *FTP) Fetch(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransferError{Name: name, Err: err}
	}

	if f.sess == nil {
		sess, err := f.dial(ctx, f.cfg)
		if err != nil {
			return "", &TransferError{Name: name, Err: err}
		}
		f.sess = sess
	}

	start := time.Now()

	n, local, err := f.retrieve(name)
	if err != nil {
		// The control connection is in an unknown state after a failed
		// transfer; the next fetch redials.
		f.drop()
		return "", &TransferError{Name: name, Err: err}
	}

	f.logger.Debug("staged file",
		slog.String("name", name),
		slog.String("path", local),
		slog.Int64("bytes", n),
		slog.Duration("elapsed", time.Since(start)),
	)

	return local, nil
}

func (f *FTP) retrieve(name string) (int64, string, error) {
	local := filepath.Join(f.cfg.Dir, filepath.Base(name))

	body, err := f.sess.Retr(name)
	if err != nil {
		return 0, "", fmt.Errorf("retrieve: %w", err)
	}
	defer body.Close()

	out, err := os.Create(local)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", local, err)
	}

	n, copyErr := io.Copy(out, body)
	closeErr := out.Close()

	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(local)
		return 0, "", fmt.Errorf("write %s: %w", local, err)
	}

	return n, local, nil
}

func (f *FTP) drop() {
	if f.sess == nil {
		return
	}

	if err := f.sess.Quit(); err != nil {
		f.logger.Debug("ftp quit failed", slog.String("error", err.Error()))
	}
	f.sess = nil
}

// Close ends the FTP session, if one is open.
func (f *FTP) Close() error {
	if f.sess == nil {
		return nil
	}

	err := f.sess.Quit()
	f.sess = nil

	if err != nil {
		return fmt.Errorf("quit ftp session: %w", err)
	}

	return nil
}
