package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Writer encodes RESP frames into a buffered stream. Nothing reaches the
// underlying writer until Flush.
type Writer struct {
	bw      *bufio.Writer
	scratch []byte
}

// NewWriter creates a Writer over w
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw:      bufio.NewWriter(w),
		scratch: make([]byte, 0, 32),
	}
}

// WriteValue encodes v, recursing into arrays
func (w *Writer) WriteValue(v Value) error {
	switch v.Type {
	case TypeSimpleString:
		return w.line(TypeSimpleString, v.Data)
	case TypeError:
		return w.line(TypeError, v.Data)
	case TypeInteger:
		return w.WriteInteger(v.Integer)
	case TypeBulkString:
		if v.IsNull {
			return w.WriteNullBulkString()
		}
		return w.WriteBulkString(v.Data)
	case TypeArray:
		if v.IsNull {
			return w.WriteNullArray()
		}
		return w.WriteArray(v.Array)
	}
	return fmt.Errorf("unsupported value type: %q", byte(v.Type))
}

// WriteSimpleString writes +s
func (w *Writer) WriteSimpleString(s string) error {
	return w.line(TypeSimpleString, []byte(s))
}

// WriteError writes -msg
func (w *Writer) WriteError(msg string) error {
	return w.line(TypeError, []byte(msg))
}

// WriteInteger writes :n
func (w *Writer) WriteInteger(n int64) error {
	return w.header(TypeInteger, n)
}

// WriteBulkString writes $len followed by data
func (w *Writer) WriteBulkString(data []byte) error {
	if err := w.header(TypeBulkString, int64(len(data))); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	_, err := w.bw.WriteString(CRLF)
	return err
}

// WriteNullBulkString writes $-1
func (w *Writer) WriteNullBulkString() error {
	return w.header(TypeBulkString, -1)
}

// WriteArray writes the array header and every element
func (w *Writer) WriteArray(values []Value) error {
	if err := w.header(TypeArray, int64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := w.WriteValue(v); err != nil {
			return err
		}
	}
	return nil
}

// WriteNullArray writes *-1
func (w *Writer) WriteNullArray() error {
	return w.header(TypeArray, -1)
}

// WriteCommand writes a command as an array of bulk strings, the shape
// every command takes on a replication stream
func (w *Writer) WriteCommand(cmd string, args ...[]byte) error {
	if err := w.header(TypeArray, int64(1+len(args))); err != nil {
		return err
	}
	if err := w.WriteBulkString([]byte(cmd)); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.WriteBulkString(arg); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered frames to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// header writes a type prefix, a decimal number and CRLF
func (w *Writer) header(prefix ValueType, n int64) error {
	w.scratch = append(w.scratch[:0], byte(prefix))
	w.scratch = strconv.AppendInt(w.scratch, n, 10)
	w.scratch = append(w.scratch, CRLF...)
	_, err := w.bw.Write(w.scratch)
	return err
}

// line writes a type prefix, a payload that must not contain CRLF and CRLF
func (w *Writer) line(prefix ValueType, data []byte) error {
	if err := w.bw.WriteByte(byte(prefix)); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	_, err := w.bw.WriteString(CRLF)
	return err
}
