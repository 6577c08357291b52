package base

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ValentinKolb/marines/rpc/transport"
)

const (
	// RequestHeaderSize is the size of the length prefix of a request frame
	RequestHeaderSize = 4
	// ResponseHeaderSize is the size of flag and length prefix of a response frame
	ResponseHeaderSize = 3
	// MaxResponseBody is the largest body a response frame can carry
	MaxResponseBody = math.MaxUint16
)

// TruncationMarker is the last line of a body that did not fit into one frame
const TruncationMarker = "... output truncated\n"

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrFrameTooLarge = errors.New("frame too large")
)

// ProtocolError reports a malformed frame. The connection it occurred on can
// not be used anymore.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------
// Request Decoder
// --------------------------------------------------------------------------

// State is the position of a Decoder within the current frame
type State uint8

const (
	StateAwaitingLength State = iota // reading the 4 byte length prefix
	StateAwaitingBody                // reading the payload
	StateMessageReady                // a complete payload waits for Take
)

func (s State) String() string {
	switch s {
	case StateAwaitingLength:
		return "AwaitingLength"
	case StateAwaitingBody:
		return "AwaitingBody"
	case StateMessageReady:
		return "MessageReady"
	default:
		return "Unknown"
	}
}

// Decoder assembles request frames from arbitrarily split reads. It never
// blocks: the caller reads into Next() and reports the byte count to Advance.
//
// Thread-safety: a Decoder must be guarded by its connection's lock.
type Decoder struct {
	state   State
	maxSize uint32

	header [RequestHeaderSize]byte
	hdrLen int

	body    []byte
	bodyLen int
}

// NewDecoder creates a decoder accepting payloads up to maxSize bytes
func NewDecoder(maxSize int) *Decoder {
	if maxSize <= 0 || uint64(maxSize) > math.MaxUint32 {
		maxSize = math.MaxUint32
	}
	return &Decoder{maxSize: uint32(maxSize)}
}

// State returns the current state
func (d *Decoder) State() State {
	return d.state
}

// Next returns the buffer the next read should fill. It is never larger than
// the number of bytes missing in the current state and empty in StateMessageReady.
func (d *Decoder) Next() []byte {
	switch d.state {
	case StateAwaitingLength:
		return d.header[d.hdrLen:]
	case StateAwaitingBody:
		return d.body[d.bodyLen:]
	default:
		return nil
	}
}

// Advance accounts n bytes that were read into Next()
func (d *Decoder) Advance(n int) error {
	if n < 0 || n > len(d.Next()) {
		return fmt.Errorf("advance by %d in state %s exceeds the read buffer", n, d.state)
	}
	switch d.state {
	case StateAwaitingLength:
		d.hdrLen += n
		if d.hdrLen < RequestHeaderSize {
			return nil
		}
		size := binary.BigEndian.Uint32(d.header[:])
		if size == 0 {
			return &ProtocolError{Err: ErrEmptyFrame}
		}
		if size > d.maxSize {
			return &ProtocolError{Err: fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, d.maxSize)}
		}
		d.body = make([]byte, size)
		d.bodyLen = 0
		d.state = StateAwaitingBody
	case StateAwaitingBody:
		d.bodyLen += n
		if d.bodyLen == len(d.body) {
			d.state = StateMessageReady
		}
	}
	return nil
}

// Feed copies bytes from p into the decoder until p is used up or a message
// is ready. It returns the number of bytes consumed.
func (d *Decoder) Feed(p []byte) (int, error) {
	consumed := 0
	for consumed < len(p) && d.state != StateMessageReady {
		n := copy(d.Next(), p[consumed:])
		consumed += n
		if err := d.Advance(n); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// Take returns the ready payload and resets the decoder to StateAwaitingLength.
// The second return value is false if no message is ready.
func (d *Decoder) Take() ([]byte, bool) {
	if d.state != StateMessageReady {
		return nil, false
	}
	msg := d.body
	d.body = nil
	d.bodyLen = 0
	d.hdrLen = 0
	d.state = StateAwaitingLength
	return msg, true
}

// --------------------------------------------------------------------------
// Response Frames
// --------------------------------------------------------------------------

// TruncateBody cuts a body that exceeds MaxResponseBody after the last
// complete line that fits and appends TruncationMarker.
func TruncateBody(body []byte) []byte {
	if len(body) <= MaxResponseBody {
		return body
	}
	cut := body[:MaxResponseBody-len(TruncationMarker)]
	end := bytes.LastIndexByte(cut, '\n') + 1
	out := make([]byte, 0, end+len(TruncationMarker))
	out = append(out, body[:end]...)
	return append(out, TruncationMarker...)
}

// EncodeResponse builds a response frame, truncating the body if necessary
func EncodeResponse(resp transport.Response) []byte {
	body := TruncateBody(resp.Body)
	frame := make([]byte, ResponseHeaderSize+len(body))
	if resp.Ok {
		frame[0] = 1
	}
	binary.BigEndian.PutUint16(frame[1:3], uint16(len(body)))
	copy(frame[ResponseHeaderSize:], body)
	return frame
}

// ReadResponse reads one response frame
func ReadResponse(r io.Reader) (transport.Response, error) {
	var header [ResponseHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return transport.Response{}, err
	}
	resp := transport.Response{Ok: header[0] != 0}
	size := binary.BigEndian.Uint16(header[1:])
	resp.Body = make([]byte, size)
	if _, err := io.ReadFull(r, resp.Body); err != nil {
		return transport.Response{}, err
	}
	return resp, nil
}

// EncodeRequest builds a request frame
func EncodeRequest(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, RequestHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[RequestHeaderSize:], payload)
	return frame, nil
}
