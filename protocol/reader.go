package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

const (
	// CRLF is the Redis protocol line terminator
	CRLF = "\r\n"

	// MaxBulkSize is the largest bulk string accepted, the Redis limit
	MaxBulkSize = 512 * 1024 * 1024

	// MaxArraySize is the largest array length accepted
	MaxArraySize = 1024 * 1024

	// MaxDepth bounds array nesting
	MaxDepth = 32

	readBufferSize = 64 * 1024

	// payloadChunk is the initial allocation for a bulk string payload
	payloadChunk = 64 * 1024
)

// Reader parses one RESP frame at a time from a stream. Payloads are copied
// out of the read buffer, so returned values stay valid across calls.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a Reader with a 64KiB buffer
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, readBufferSize)}
}

// ReadNext reads the next frame.
//
// io.EOF is returned only on a clean frame boundary. A stream that ends in
// the middle of a frame yields io.ErrUnexpectedEOF, and a frame that
// violates the protocol yields *Error. Other read failures are returned as
// they come from the underlying reader.
func (r *Reader) ReadNext() (Value, error) {
	if _, err := r.br.Peek(1); err != nil {
		return Value{}, err
	}
	return r.value(0)
}

// Buffered returns the number of bytes already read from the underlying
// reader but not yet consumed. Servers use it to batch replies for
// pipelined requests.
func (r *Reader) Buffered() int {
	return r.br.Buffered()
}

func (r *Reader) value(depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, protocolErrorf("array nesting deeper than %d", MaxDepth)
	}

	prefix, line, err := r.header()
	if err != nil {
		return Value{}, err
	}

	switch prefix {
	case TypeSimpleString, TypeError:
		return Value{Type: prefix, Data: line}, nil

	case TypeInteger:
		n, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return Value{}, protocolErrorf("invalid integer: %q", line)
		}
		return Value{Type: TypeInteger, Integer: n}, nil

	case TypeBulkString:
		n, null, err := length(line, MaxBulkSize)
		if err != nil {
			return Value{}, protocolErrorf("invalid bulk string length: %q", line)
		}
		if null {
			return Value{Type: TypeBulkString, IsNull: true}, nil
		}
		data, err := r.payload(n)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeBulkString, Data: data}, nil

	case TypeArray:
		n, null, err := length(line, MaxArraySize)
		if err != nil {
			return Value{}, protocolErrorf("invalid array length: %q", line)
		}
		if null {
			return Value{Type: TypeArray, IsNull: true}, nil
		}
		items := make([]Value, n)
		for i := range items {
			if items[i], err = r.value(depth + 1); err != nil {
				return Value{}, err
			}
		}
		return Value{Type: TypeArray, Array: items}, nil
	}

	return Value{}, protocolErrorf("unknown RESP type: %q", byte(prefix))
}

// header reads a type byte and the rest of its CRLF-terminated line
func (r *Reader) header() (ValueType, []byte, error) {
	raw, err := r.br.ReadSlice('\n')
	switch {
	case err == bufio.ErrBufferFull:
		return 0, nil, protocolErrorf("header line longer than %d bytes", readBufferSize)
	case err != nil:
		return 0, nil, truncated(err)
	}

	n := len(raw)
	if n < 3 || raw[n-2] != '\r' {
		return 0, nil, protocolErrorf("missing CRLF terminator")
	}

	line := make([]byte, n-3)
	copy(line, raw[1:n-2])
	return ValueType(raw[0]), line, nil
}

// payload reads n bytes followed by CRLF. Memory grows with the data that
// actually arrives, not with the declared length.
func (r *Reader) payload(n int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(min(n, payloadChunk) + 2)
	if _, err := io.CopyN(&buf, r.br, int64(n)+2); err != nil {
		return nil, truncated(err)
	}
	data := buf.Bytes()
	if data[n] != '\r' || data[n+1] != '\n' {
		return nil, protocolErrorf("bulk string not terminated by CRLF")
	}
	return data[:n:n], nil
}

// length parses an aggregate length. -1 marks a null value; anything else
// below zero or above limit is rejected.
func length(line []byte, limit int) (n int, null bool, err error) {
	v, err := strconv.ParseInt(string(line), 10, 64)
	switch {
	case err != nil:
		return 0, false, err
	case v == -1:
		return 0, true, nil
	case v < 0 || v > int64(limit):
		return 0, false, strconv.ErrRange
	}
	return int(v), false, nil
}

// truncated maps io.EOF inside a frame to io.ErrUnexpectedEOF
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
