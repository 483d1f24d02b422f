// Package protocol defines the framed binary RPC the gateway speaks over
// TCP. A frame is a fixed seven-byte header followed by a protobuf-encoded
// body; responses reuse the request's method byte.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic is the first byte of every frame.
	Magic = 0xA7
	// Version is the protocol revision carried in the second byte.
	Version = 0x01
	// HeaderLength is magic + version + method + uint32 body length.
	HeaderLength = 7
	// MaxBodyLength bounds a frame body. Requests carry credentials and
	// tokens, never bulk data; 64 KiB is generous.
	MaxBodyLength = 64 * 1024
)

// Method identifies the RPC a frame carries.
type Method byte

const (
	MethodCreateSession         Method = 1
	MethodGetSessionMetadata    Method = 2
	MethodSendVerificationCode  Method = 3
	MethodCheckVerificationCode Method = 4
	MethodValidateCredentials   Method = 5
)

// Valid reports whether the method byte is a known RPC.
func (m Method) Valid() bool {
	return m >= MethodCreateSession && m <= MethodValidateCredentials
}

// String returns the RPC name for logging and metrics labels.
func (m Method) String() string {
	switch m {
	case MethodCreateSession:
		return "create_session"
	case MethodGetSessionMetadata:
		return "get_session_metadata"
	case MethodSendVerificationCode:
		return "send_verification_code"
	case MethodCheckVerificationCode:
		return "check_verification_code"
	case MethodValidateCredentials:
		return "validate_credentials"
	default:
		return fmt.Sprintf("unknown(%d)", byte(m))
	}
}

// Framing errors. Connection handlers close the peer on any of these.
var (
	ErrBadMagic      = errors.New("protocol: bad magic byte")
	ErrBadVersion    = errors.New("protocol: unsupported version")
	ErrUnknownMethod = errors.New("protocol: unknown method")
	ErrBodyTooLarge  = errors.New("protocol: body exceeds maximum length")
)

// Frame is one decoded unit on the wire.
type Frame struct {
	Method Method
	Body   []byte
}

// WriteFrame encodes and writes a single frame.
func WriteFrame(w io.Writer, f Frame) error {
	if !f.Method.Valid() {
		return ErrUnknownMethod
	}
	if len(f.Body) > MaxBodyLength {
		return ErrBodyTooLarge
	}

	header := make([]byte, HeaderLength, HeaderLength+len(f.Body))
	header[0] = Magic
	header[1] = Version
	header[2] = byte(f.Method)
	binary.BigEndian.PutUint32(header[3:], uint32(len(f.Body)))

	if _, err := w.Write(append(header, f.Body...)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads and validates a single frame. io.EOF is returned
// unwrapped when the peer closes cleanly between frames.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [HeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}

	if header[0] != Magic {
		return Frame{}, ErrBadMagic
	}
	if header[1] != Version {
		return Frame{}, ErrBadVersion
	}
	method := Method(header[2])
	if !method.Valid() {
		return Frame{}, ErrUnknownMethod
	}
	length := binary.BigEndian.Uint32(header[3:])
	if length > MaxBodyLength {
		return Frame{}, ErrBodyTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("read frame body: %w", err)
	}
	return Frame{Method: method, Body: body}, nil
}
