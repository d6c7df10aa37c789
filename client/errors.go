package client

import "fmt"

// ConnectError is returned when the peer cannot be reached within the
// connect timeout.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %s", e.Addr, e.Err.Error())
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransmissionError is returned when writing to or closing the
// connection fails.
type TransmissionError struct {
	Addr string
	Op   string
	Err  error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("%s on %s: %s", e.Op, e.Addr, e.Err.Error())
}

func (e *TransmissionError) Unwrap() error { return e.Err }
