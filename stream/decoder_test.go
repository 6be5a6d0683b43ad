package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, d *Decoder) []Command {
	t.Helper()

	var out []Command
	for {
		cmd, err := d.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, cmd)
	}
}

func TestDecoderClassifiesCommands(t *testing.T) {
	input := encode(t,
		[]string{"SET", "a", "1"},
		[]string{"expireat", "a", "1700000000"},
		[]string{"SELECT", "0"},
		[]string{"SET", "b", "2", "EX", "10"},
		[]string{"DEL", "a", "b"},
		[]string{"set", "c", "3"},
	)
	input = append(input, []byte("+PING\r\n")...)

	d := NewDecoder(bytes.NewReader(input), nil)
	cmds := decodeAll(t, d)
	require.Len(t, cmds, 7)

	assert.Equal(t, KindSet, cmds[0].Kind)
	assert.Equal(t, "a", string(cmds[0].Key))
	assert.Equal(t, "1", string(cmds[0].Value))

	assert.Equal(t, KindExpireAt, cmds[1].Kind)
	assert.Equal(t, "a", string(cmds[1].Key))
	assert.Equal(t, "1700000000", string(cmds[1].At))

	assert.Equal(t, KindOther, cmds[2].Kind)
	assert.Equal(t, "SELECT", cmds[2].Name)
	assert.Equal(t, KindOther, cmds[3].Kind, "SET with options has the wrong arity")
	assert.Equal(t, KindOther, cmds[4].Kind, "DEL with two keys is a three-element array but not a SET")
	assert.Equal(t, KindSet, cmds[5].Kind)
	assert.Equal(t, KindOther, cmds[6].Kind, "non-array frame")

	assert.EqualValues(t, 7, d.Frames())
}

func TestDecoderTruncatedStreamEndsGracefully(t *testing.T) {
	input := encode(t, []string{"SET", "a", "1"}, []string{"SET", "b", "2"})
	input = input[:len(input)-4]

	d := NewDecoder(bytes.NewReader(input), nil)
	cmds := decodeAll(t, d)
	require.Len(t, cmds, 1)
	assert.Equal(t, "a", string(cmds[0].Key))

	_, err := d.Next()
	assert.Equal(t, io.EOF, err, "the sequence is not restartable")
}

func TestDecoderMalformedFrameEndsGracefully(t *testing.T) {
	input := encode(t, []string{"SET", "a", "1"})
	input = append(input, []byte("?garbage\r\n")...)
	input = append(input, encode(t, []string{"SET", "b", "2"})...)

	cmds := decodeAll(t, NewDecoder(bytes.NewReader(input), nil))
	require.Len(t, cmds, 1)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestDecoderReadFailureIsFatal(t *testing.T) {
	boom := errors.New("disk on fire")
	d := NewDecoder(&failingReader{data: encode(t, []string{"SET", "a", "1"}), err: boom}, nil)

	cmd, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, KindSet, cmd.Kind)

	_, err = d.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoderEmptyInput(t *testing.T) {
	d := NewDecoder(bytes.NewReader(nil), nil)
	_, err := d.Next()
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, d.Frames())
}
