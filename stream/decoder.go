package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/raniellyferreira/redis-injector/protocol"
)

// Kind tells which command a decoded frame carries
type Kind uint8

const (
	// KindOther is any frame that is not a well-formed SET or EXPIREAT
	KindOther Kind = iota
	// KindSet is SET key value
	KindSet
	// KindExpireAt is EXPIREAT key unix-seconds
	KindExpireAt
)

// String returns the command name for the kind
func (k Kind) String() string {
	switch k {
	case KindSet:
		return "SET"
	case KindExpireAt:
		return "EXPIREAT"
	default:
		return "OTHER"
	}
}

// Command is one decoded frame. Key and Value are set for KindSet; Key and
// At are set for KindExpireAt. Name holds the raw command name when one
// could be read, for logging.
type Command struct {
	Kind  Kind
	Name  string
	Key   []byte
	Value []byte
	At    []byte
}

var (
	setName      = []byte("SET")
	expireAtName = []byte("EXPIREAT")
)

// Decoder reads commands from a RESP stream
type Decoder struct {
	reader *protocol.Reader
	logger Logger
	frames int64
	done   bool
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader, logger Logger) *Decoder {
	return &Decoder{
		reader: protocol.NewReader(r),
		logger: orNop(logger),
	}
}

// Next returns the next command.
//
// It returns io.EOF once the stream is exhausted. A truncated or malformed
// frame also ends the sequence with io.EOF (after logging it) so the caller
// can flush what it already holds. Any other read failure is returned
// wrapped and is meant to be fatal. Once Next has returned an error, every
// later call returns io.EOF.
func (d *Decoder) Next() (Command, error) {
	if d.done {
		return Command{}, io.EOF
	}

	value, err := d.reader.ReadNext()
	if err != nil {
		d.done = true

		var perr *protocol.Error
		switch {
		case err == io.EOF:
			return Command{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			d.logger.Warn("Input stream truncated inside a frame, stopping", "frames", d.frames)
			return Command{}, io.EOF
		case errors.As(err, &perr):
			d.logger.Warn("Malformed frame, stopping", "frames", d.frames, "error", perr)
			return Command{}, io.EOF
		default:
			return Command{}, fmt.Errorf("read command stream: %w", err)
		}
	}

	d.frames++
	return classify(value), nil
}

// Frames returns the number of complete frames read so far
func (d *Decoder) Frames() int64 {
	return d.frames
}

// classify maps a frame to a Command. Only three-element arrays of bulk
// strings can be SET or EXPIREAT; the name is matched case-insensitively.
func classify(v protocol.Value) Command {
	if v.Type != protocol.TypeArray || v.IsNull || len(v.Array) == 0 {
		return Command{Kind: KindOther}
	}

	cmd := Command{Kind: KindOther}
	if head := v.Array[0]; head.Type == protocol.TypeBulkString && !head.IsNull {
		cmd.Name = string(head.Data)
	}

	if len(v.Array) != 3 {
		return cmd
	}
	for _, elem := range v.Array {
		if elem.Type != protocol.TypeBulkString || elem.IsNull {
			return cmd
		}
	}

	name := v.Array[0].Data
	switch {
	case bytes.EqualFold(name, setName):
		cmd.Kind = KindSet
		cmd.Key = v.Array[1].Data
		cmd.Value = v.Array[2].Data
	case bytes.EqualFold(name, expireAtName):
		cmd.Kind = KindExpireAt
		cmd.Key = v.Array[1].Data
		cmd.At = v.Array[2].Data
	}
	return cmd
}
