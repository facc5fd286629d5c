package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the size of the length prefix.
	FrameHeaderSize = 4
	// DefaultMaxFrameSize bounds a single frame payload.
	DefaultMaxFrameSize = 1 << 20
)

// ReadFrame reads one length-prefixed frame. A zero-length frame is a
// heartbeat and yields an empty, non-nil slice. Errors from r are tagged as
// I/O failures; a negative or oversized length is a protocol error.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var prefix [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, WrapError(ErrorCodeIOFailure, err, "read frame length")
	}

	n := int32(binary.LittleEndian.Uint32(prefix[:]))
	if n < 0 {
		return nil, NewProtocolError(ErrorCodeProtocol, fmt.Sprintf("frame length %d", n), ErrNegativeLength)
	}
	if maxSize > 0 && int(n) > maxSize {
		return nil, NewProtocolError(ErrorCodeProtocol, fmt.Sprintf("frame length %d exceeds %d", n, maxSize), ErrFrameTooLarge)
	}
	if n == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, WrapError(ErrorCodeIOFailure, err, "read frame payload")
	}
	return payload, nil
}

// AppendFrame appends the length prefix and payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// WriteFrame writes payload as a single frame in one Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := AppendFrame(make([]byte, 0, FrameHeaderSize+len(payload)), payload)
	if _, err := w.Write(buf); err != nil {
		return WrapError(ErrorCodeIOFailure, err, "write frame")
	}
	return nil
}

// WriteHeartbeat writes a zero-length frame.
func WriteHeartbeat(w io.Writer) error {
	var prefix [FrameHeaderSize]byte
	if _, err := w.Write(prefix[:]); err != nil {
		return WrapError(ErrorCodeIOFailure, err, "write heartbeat")
	}
	return nil
}
