package frame

import (
	"errors"
	"fmt"
	"io"
)

// Termination is the payload of the end-of-session frame.
const Termination = "over"

// ErrClosed is returned by Writer after the termination frame was sent.
var ErrClosed = errors.New("frame writer closed by termination frame")

// Kind tags a frame as data or control.
type Kind int

const (
	KindResult Kind = iota
	KindTermination
)

func (k Kind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindTermination:
		return "termination"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one message on the connection.
type Frame struct {
	Kind    Kind
	Payload string
}

// ResultFrame encodes a batch of results into a result frame.
func ResultFrame(results []string) (Frame, error) {
	payload, err := EncodeResults(results)
	if err != nil {
		return Frame{}, err
	}

	return Frame{Kind: KindResult, Payload: payload}, nil
}

// TerminationFrame returns the end-of-session frame.
func TerminationFrame() Frame {
	return Frame{Kind: KindTermination, Payload: Termination}
}

// Classify tags a payload read off the wire.
func Classify(payload string) Frame {
	if payload == Termination {
		return TerminationFrame()
	}

	return Frame{Kind: KindResult, Payload: payload}
}

// Fields returns the decoded results of a result frame, or nil for a
// termination frame.
func (f Frame) Fields() []string {
	if f.Kind != KindResult {
		return nil
	}

	return DecodeResults(f.Payload)
}

// Writer writes frames to an underlying stream. No frame can be written
// after the termination frame.
type Writer struct {
	w          io.Writer
	written    int
	terminated bool
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write sends one frame.
func (fw *Writer) Write(f Frame) error {
	if fw.terminated {
		return ErrClosed
	}

	if f.Kind == KindResult && f.Payload == Termination {
		return fmt.Errorf("result payload %q collides with the termination sentinel", f.Payload)
	}

	if err := WriteUTF(fw.w, f.Payload); err != nil {
		return err
	}

	fw.written++
	if f.Kind == KindTermination {
		fw.terminated = true
	}

	return nil
}

// Written reports the number of frames sent, termination included.
func (fw *Writer) Written() int {
	return fw.written
}

// Terminated reports whether the termination frame was sent.
func (fw *Writer) Terminated() bool {
	return fw.terminated
}

// Reader reads frames until the termination frame.
type Reader struct {
	r    io.Reader
	done bool
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next frame. After the termination frame it returns
// io.EOF.
func (fr *Reader) Next() (Frame, error) {
	if fr.done {
		return Frame{}, io.EOF
	}

	payload, err := ReadUTF(fr.r)
	if err != nil {
		return Frame{}, err
	}

	f := Classify(payload)
	if f.Kind == KindTermination {
		fr.done = true
	}

	return f, nil
}
